// avz-server serves agent run data to the avz viewer: run discovery over a
// runs directory, per-run snapshots derived from events.jsonl, raw event
// pages, vulnerability reports, and a live websocket stream per run.
//
// Usage:
//
//	avz-server                          # serve ./agent_runs on 127.0.0.1:8321
//	avz-server --runs-dir <path>        # serve a specific runs directory
//	avz-server --listen <addr>          # bind address
//	avz-server --config avz.yaml        # load settings from a YAML file
//	avz-server --version                # print version and exit
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"agentviz/internal/config"
	"agentviz/internal/server"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to avz.yaml (default: built-in settings)")
	runsDir := flag.String("runs-dir", "", "directory holding run folders (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("avz-server %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avz-server: %v\n", err)
		os.Exit(1)
	}
	if *runsDir != "" {
		cfg.Server.RunsDir = *runsDir
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := server.New(cfg.Server.RunsDir, log)

	log.Info("serving", "runs_dir", cfg.Server.RunsDir, "listen", cfg.Server.Listen, "version", Version)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}
