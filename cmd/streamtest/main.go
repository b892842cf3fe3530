// streamtest connects to a WebSocket endpoint and streams events to the console.
// Lines typed on stdin are sent to the endpoint.
// Usage: go run ./cmd/streamtest --url ws://localhost:9000/ws
//
// Input commands:
//
//	<text>                 sent verbatim
//	/emit <event> <json>   sent as an {"event","data"} envelope
//	/close [code] [reason] close the connection (1000 stops the session)
//	/connect               reconnect with a fresh session
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/wsrelay/internal/config"
	"github.com/rickgao/wsrelay/internal/connection"
	"github.com/rickgao/wsrelay/internal/router"
)

func main() {
	configPath := flag.String("config", "", "optional path to config file")
	url := flag.String("url", "", "endpoint URL (overrides config)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := &config.RelayConfig{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *url != "" {
		cfg.Endpoint.URL = *url
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	rtr := router.New(router.Config{QueueSize: cfg.Router.QueueSize}, logger)
	defer rtr.Close()

	mgr := connection.NewManager(cfg.ManagerConfig(), rtr, connection.WithLogger(logger))

	go printEvents(ctx, rtr.Subscribe(router.Wildcard), *verbose)
	go readInput(ctx, mgr, logger)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := mgr.Stats()
				rs := rtr.Stats()
				logger.Info("stats",
					"state", st.State,
					"generation", st.Generation,
					"reconnects", st.Reconnects,
					"frames", st.FramesReceived,
					"fallbacks", st.DecodeFallbacks,
					"sent", st.Sent,
					"pending_sends", st.PendingSends,
					"router_published", rs.Published,
				)
			}
		}
	}()

	mgr.Connect()
	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Close(connection.CloseNormalClosure, "streamtest exiting")
	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, sub *router.Subscription, verbose bool) {
	sub.Handle(ctx, func(ev connection.Event) {
		if verbose {
			data, err := json.MarshalIndent(ev, "", "  ")
			if err != nil {
				fmt.Printf("[EVENT] %s (marshal failed: %v) %q\n", ev.Name, err, ev.Data)
				return
			}
			fmt.Printf("[EVENT] %s\n", data)
			return
		}
		fmt.Printf("[%s] %s\n", strings.ToUpper(ev.Name), ev.Data)
	})
}

func readInput(ctx context.Context, mgr *connection.Manager, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := handleLine(ctx, mgr, line); err != nil {
			logger.Warn("command failed", "input", line, "error", err)
		}
	}
}

type commandKind int

const (
	cmdSend commandKind = iota
	cmdConnect
	cmdClose
	cmdEmit
)

// command is one parsed line of stdin input.
type command struct {
	kind   commandKind
	text   string
	code   int
	reason string
	event  string
	data   json.RawMessage
}

// parseCommand turns an input line into a command. Anything that is not
// exactly one of the slash commands is sent verbatim.
func parseCommand(line string) (command, error) {
	switch {
	case line == "/connect":
		return command{kind: cmdConnect}, nil

	case line == "/close" || strings.HasPrefix(line, "/close "):
		cmd := command{kind: cmdClose, code: connection.CloseNormalClosure}
		fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "/close")), " ", 2)
		if fields[0] != "" {
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return command{}, fmt.Errorf("invalid close code %q", fields[0])
			}
			cmd.code = n
		}
		if len(fields) == 2 {
			cmd.reason = fields[1]
		}
		return cmd, nil

	case strings.HasPrefix(line, "/emit "):
		fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "/emit ")), " ", 2)
		if fields[0] == "" {
			return command{}, fmt.Errorf("missing event name")
		}
		cmd := command{kind: cmdEmit, event: fields[0]}
		if len(fields) == 2 {
			cmd.data = json.RawMessage(fields[1])
			if !json.Valid(cmd.data) {
				return command{}, fmt.Errorf("data is not valid JSON")
			}
		}
		return cmd, nil
	}

	return command{kind: cmdSend, text: line}, nil
}

func handleLine(ctx context.Context, mgr *connection.Manager, line string) error {
	cmd, err := parseCommand(line)
	if err != nil {
		return err
	}

	switch cmd.kind {
	case cmdConnect:
		mgr.Connect()
		return nil
	case cmdClose:
		return mgr.Close(cmd.code, cmd.reason)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if cmd.kind == cmdEmit {
		var data any
		if cmd.data != nil {
			data = cmd.data
		}
		return mgr.Emit(sendCtx, cmd.event, data)
	}
	return mgr.Send(sendCtx, cmd.text)
}
