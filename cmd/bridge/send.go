package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/bridge/pkg/bridge"
	"github.com/vango-dev/bridge/pkg/component"
	"github.com/vango-dev/bridge/pkg/dispatch"
	"github.com/vango-dev/bridge/pkg/middleware"
	"github.com/vango-dev/bridge/pkg/transport/ws"
)

func sendCmd() *cobra.Command {
	var (
		baseURL string
		linger  time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "send <worker>",
		Short: "Send JSON lines from stdin to a worker",
		Long: `Connect to a worker on a running "bridge serve" and send every
line of stdin as one input. Outputs are printed one per line.

Examples:
  echo '{"times":3}' | bridge send counter
  bridge send echo --url=ws://10.0.0.5:8090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			url := strings.TrimSuffix(baseURL, "/") + "/workers/" + args[0]
			return runSend(cmd.Context(), url, cmd.InOrStdin(), cmd.OutOrStdout(), linger, logger)
		},
	}

	cmd.Flags().StringVarP(&baseURL, "url", "u", "ws://localhost:8090", "Base URL of the worker host")
	cmd.Flags().DurationVar(&linger, "linger", 500*time.Millisecond, "How long to wait for outputs after stdin ends")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log connection details")

	return cmd
}

// runSend renders a one-component tree whose bridge prints every output,
// feeds it stdin and tears it down after linger.
func runSend(ctx context.Context, url string, in io.Reader, out io.Writer, linger time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := dispatch.NewLoop(logger)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()

	transport := middleware.Trace[json.RawMessage, json.RawMessage](
		ws.New[json.RawMessage, json.RawMessage](url,
			ws.WithDispatcher(loop),
			ws.WithLogger(logger),
		),
	)

	owner := component.NewOwner(nil)
	var (
		handle *bridge.Handle[json.RawMessage]
		err    error
	)
	owner.Render(func() {
		handle, err = bridge.UseBridge[json.RawMessage, json.RawMessage](ctx, owner, transport,
			func(output json.RawMessage) {
				fmt.Fprintln(out, string(output))
			},
			bridge.WithLogger(logger),
			bridge.WithName("send"),
		)
	})
	if err != nil {
		owner.Dispose()
		return err
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			logger.Warn("skipping invalid JSON", "line", line)
			continue
		}
		if err := handle.Send(json.RawMessage(line)); err != nil {
			owner.Dispose()
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		owner.Dispose()
		return err
	}

	select {
	case <-time.After(linger):
	case <-ctx.Done():
	}

	owner.Dispose()
	loop.Close()
	<-loopDone
	return nil
}
