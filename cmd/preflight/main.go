// cmd/preflight/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/connwatch/connwatch/internal/config"
	"github.com/connwatch/connwatch/internal/registry"
)

// preflight resolves the config into its target set and prints what the
// monitor would probe, without opening a single connection.
func main() {
	cfgPath := flag.String("config", "connwatch.yaml", "path to YAML config")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err.Error())
	}
	ok("config loaded: " + *cfgPath)

	targets, err := registry.Build(cfg)
	if err != nil {
		fail(err.Error())
	}
	ok(fmt.Sprintf("%d targets resolved", len(targets)))

	for _, t := range targets {
		fmt.Printf("  %-28s %-8s %-5s %s\n", t.ID, t.Path, t.Protocol, t.Endpoint)
	}

	if len(cfg.Routes) == 0 {
		warn("no routes configured — peer status polling disabled")
	}
	if len(cfg.AdminKeys) == 0 {
		warn("admin_keys empty — clear_history is unauthenticated")
	}
	if cfg.ArchiveDSN == "" {
		warn("archive_dsn empty — closed outages are kept in memory only")
	}

	ok("preflight passed")
}
