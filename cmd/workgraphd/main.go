// Command workgraphd is the coordinator daemon: it ticks the dispatch loop
// on a timer and serves the Unix-socket IPC protocol that lets `workgraph`
// push immediate ticks, query status, and request shutdown.
//
// It is started detached by `workgraph service start`, which execs this
// binary with `--dir <project> [--max-agents N]` and leaves it running
// after the parent CLI invocation exits.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/workgraph/workgraph/internal/config"
	"github.com/workgraph/workgraph/internal/coordinator"
	"github.com/workgraph/workgraph/internal/ipc"
	"github.com/workgraph/workgraph/internal/logging"
	"github.com/workgraph/workgraph/internal/store"
)

func main() {
	dir := flag.String("dir", "", "project directory (default: current directory)")
	maxAgents := flag.Int("max-agents", 0, "override the configured parallelism cap")
	model := flag.String("model", "", "coordinator default model")
	cliPath := flag.String("cli-path", "workgraph", "path to the workgraph CLI binary used by dispatched wrapper scripts")
	flag.Parse()

	if err := run(*dir, *maxAgents, *model, *cliPath); err != nil {
		fmt.Fprintln(os.Stderr, "workgraphd:", err)
		os.Exit(1)
	}
}

func run(dir string, maxAgents int, model, cliPath string) error {
	projectDir := dir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
		projectDir = wd
	}

	if err := config.InitDir(projectDir); err != nil {
		return fmt.Errorf("init project dir: %w", err)
	}
	cfg, err := config.New(projectDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(projectDir)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logger.Close()

	st := store.New(cfg.GraphPath(), cfg.OperationsLogPath())

	opts := []coordinator.Option{coordinator.WithLogger(logger)}
	if cliPath != "" {
		opts = append(opts, coordinator.WithCLIPath(cliPath))
	}
	if model != "" {
		opts = append(opts, coordinator.WithModel(model))
	}
	co := coordinator.New(cfg, st, opts...)
	if maxAgents > 0 {
		co.Reconfigure(&maxAgents)
	}

	srv, err := ipc.Listen(cfg.SocketPath(), co, logger)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.SocketPath(), err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	logger.Printf("workgraphd: started (dir=%s socket=%s max_agents=%d)", projectDir, cfg.SocketPath(), co.Status().MaxAgents)

	for {
		select {
		case <-ticker.C:
			if _, err := co.Tick(); err != nil {
				logger.Printf("tick: %v", err)
			}

		case s := <-sig:
			logger.Printf("workgraphd: received signal %s, shutting down", s)
			return shutdown(srv, cfg)

		case <-co.Done():
			logger.Printf("workgraphd: shutdown requested over IPC")
			return shutdown(srv, cfg)

		case err := <-serveErr:
			if err != nil {
				logger.Printf("ipc serve: %v", err)
				return err
			}
			return nil
		}
	}
}

func shutdown(srv *ipc.Server, cfg *config.Config) error {
	if err := srv.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	_ = os.Remove(cfg.SocketPath())
	return nil
}
