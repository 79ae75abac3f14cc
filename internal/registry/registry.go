// Package registry resolves configuration into the fixed set of
// monitoring targets. It never opens connections; triples with missing
// connection parameters are skipped rather than errored.
package registry

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/connwatch/connwatch/internal/config"
	"github.com/connwatch/connwatch/internal/domain"
)

// RoutePeerName names the i-th (1-based) route peer. The poller and the
// clear-history fan-out rely on the same derivation.
func RoutePeerName(i int) string {
	return fmt.Sprintf("peer-%d-route", i)
}

// Build expands the bastion config into one target per (peer, path,
// protocol) triple with complete parameters. It fails only when the
// resulting set would be empty.
func Build(cfg config.Config) ([]domain.Target, error) {
	var out []domain.Target

	lbNames := make([]string, 0, len(cfg.LoadBalancers))
	for name := range cfg.LoadBalancers {
		lbNames = append(lbNames, name)
	}
	sort.Strings(lbNames)
	for _, name := range lbNames {
		ip := strings.TrimSpace(cfg.LoadBalancers[name])
		if ip == "" {
			continue
		}
		out = append(out,
			httpTarget(name, domain.PathLoadBalancer, fmt.Sprintf("http://%s/ping", net.JoinHostPort(ip, strconv.Itoa(cfg.LBPorts.HTTP))), cfg.Probe),
			wsTarget(name, domain.PathLoadBalancer, fmt.Sprintf("ws://%s", net.JoinHostPort(ip, strconv.Itoa(cfg.LBPorts.WS))), cfg.Probe),
			tcpTarget(name, domain.PathLoadBalancer, net.JoinHostPort(ip, strconv.Itoa(cfg.LBPorts.TCP)), cfg.Probe),
		)
	}

	npNames := make([]string, 0, len(cfg.NodePorts))
	for name := range cfg.NodePorts {
		npNames = append(npNames, name)
	}
	sort.Strings(npNames)
	for _, name := range npNames {
		np := cfg.NodePorts[name]
		host := strings.TrimSpace(np.Host)
		if host == "" {
			continue
		}
		if np.HTTPPort > 0 {
			out = append(out, httpTarget(name, domain.PathNodePort,
				fmt.Sprintf("http://%s/ping", net.JoinHostPort(host, strconv.Itoa(np.HTTPPort))), cfg.Probe))
		}
		if np.WSPort > 0 {
			out = append(out, wsTarget(name, domain.PathNodePort,
				fmt.Sprintf("ws://%s", net.JoinHostPort(host, strconv.Itoa(np.WSPort))), cfg.Probe))
		}
		if np.TCPPort > 0 {
			out = append(out, tcpTarget(name, domain.PathNodePort,
				net.JoinHostPort(host, strconv.Itoa(np.TCPPort)), cfg.Probe))
		}
	}

	for i, raw := range cfg.Routes {
		url := strings.TrimRight(strings.TrimSpace(raw), "/")
		if url == "" {
			continue
		}
		out = append(out, httpTarget(RoutePeerName(i+1), domain.PathRoute, url+"/ping", cfg.Probe))
	}

	if len(out) == 0 {
		return nil, &config.ConfigError{Reason: "no targets: configure load_balancers, node_ports or routes"}
	}
	return out, nil
}

// BuildPeer expands the peer responder config into targets for every
// sibling peer, all three protocols. Peer services expose the same fixed
// ports the responder listens on.
func BuildPeer(cfg config.PeerConfig) ([]domain.Target, error) {
	var out []domain.Target
	for _, raw := range cfg.Peers {
		peer := strings.TrimSpace(raw)
		if peer == "" {
			continue
		}
		host := peer
		if peer == cfg.Name {
			host = "localhost"
		}
		out = append(out,
			httpTarget(peer, domain.PathRoute, fmt.Sprintf("http://%s/ping", net.JoinHostPort(host, strconv.Itoa(cfg.HTTPPort))), cfg.Probe),
			wsTarget(peer, domain.PathRoute, fmt.Sprintf("ws://%s", net.JoinHostPort(host, strconv.Itoa(cfg.WSPort))), cfg.Probe),
			tcpTarget(peer, domain.PathRoute, net.JoinHostPort(host, strconv.Itoa(cfg.TCPPort)), cfg.Probe),
		)
	}
	if len(out) == 0 {
		return nil, &config.ConfigError{Reason: "no peers configured"}
	}
	return out, nil
}

func httpTarget(peer string, path domain.PathKind, endpoint string, p config.ProbeConfig) domain.Target {
	return domain.Target{
		ID:             domain.MakeTargetID(peer, domain.ProtoHTTP),
		Peer:           peer,
		Path:           path,
		Protocol:       domain.ProtoHTTP,
		Endpoint:       endpoint,
		ProbeInterval:  p.HTTPInterval(),
		ProbeTimeout:   p.HTTPTimeout(),
		ReconnectDelay: p.ReconnectDelay(),
	}
}

func wsTarget(peer string, path domain.PathKind, endpoint string, p config.ProbeConfig) domain.Target {
	return domain.Target{
		ID:             domain.MakeTargetID(peer, domain.ProtoWS),
		Peer:           peer,
		Path:           path,
		Protocol:       domain.ProtoWS,
		Endpoint:       endpoint,
		ProbeInterval:  p.WSInterval(),
		ProbeTimeout:   p.WSOpenTimeout(),
		ReconnectDelay: p.ReconnectDelay(),
	}
}

func tcpTarget(peer string, path domain.PathKind, endpoint string, p config.ProbeConfig) domain.Target {
	return domain.Target{
		ID:             domain.MakeTargetID(peer, domain.ProtoTCP),
		Peer:           peer,
		Path:           path,
		Protocol:       domain.ProtoTCP,
		Endpoint:       endpoint,
		ProbeInterval:  p.TCPInterval(),
		ProbeTimeout:   p.TCPConnTimeout(),
		ReconnectDelay: p.ReconnectDelay(),
	}
}
