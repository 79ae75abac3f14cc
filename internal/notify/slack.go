package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackAttachment struct {
	Color string `json:"color"`
	Title string `json:"title"`
	Text  string `json:"text"`
	TS    int64  `json:"ts"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

func (s *Slack) Send(ctx context.Context, ev Event) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}

	att := slackAttachment{
		Text: fmt.Sprintf("Peer: %s\nPath: %s\nProtocol: %s",
			ev.Target.Peer, ev.Target.Path, ev.Target.Protocol),
		TS: ev.At.Unix(),
	}
	switch ev.Kind {
	case EventRecovered:
		att.Color = "good"
		att.Title = fmt.Sprintf("🟢 %s recovered", ev.Target.ID)
		att.Text += fmt.Sprintf("\nOutage: %.2fs", ev.DurationSec)
	default:
		att.Color = "danger"
		att.Title = fmt.Sprintf("🔴 %s is DOWN", ev.Target.ID)
		att.Text += "\nReason: " + ev.Reason
	}

	body, _ := json.Marshal(slackPayload{Attachments: []slackAttachment{att}})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.New("slack non-2xx")
	}
	return nil
}
