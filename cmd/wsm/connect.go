package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/wsm/internal/config"
)

type connectOptions struct {
	events   []string
	signals  []string
	emitType string
	flushFor time.Duration
}

func connectCmd(opts *globalOptions) *cobra.Command {
	var co connectOptions

	cmd := &cobra.Command{
		Use:   "connect [url]",
		Short: "Open an interactive session",
		Long: `Open a session and keep it alive until interrupted.

Each line read from standard input is sent as a TEXT frame, or wrapped in
an envelope when --emit is set. Envelopes received for the subscribed
event types are printed to standard output as "<type> <data>".

The session reconnects after abnormal closes. When the retry budget is
spent the command exits with an error.

Examples:
  wsm connect ws://localhost:8080/_ws
  wsm connect https://example.com/_ws --event chat --event connected
  echo '{"type":"hello","data":1}' | wsm connect`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var url string
			if len(args) > 0 {
				url = args[0]
			}
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			return runConnect(cmd.Context(), cfg, url, co, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&co.events, "event", "e", nil, "Event types to print")
	cmd.Flags().StringSliceVar(&co.signals, "signal", nil, "Payload-less event types to print")
	cmd.Flags().StringVar(&co.emitType, "emit", "", "Wrap each input line in an envelope of this type")
	cmd.Flags().DurationVar(&co.flushFor, "flush-timeout", 10*time.Second, "How long to wait for queued sends at end of input")

	return cmd
}

func runConnect(parent context.Context, cfg *config.Config, url string, co connectOptions, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-sigCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	serveMetrics(ctx, cfg, logger)

	s, err := openSession(ctx, cfg, url, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var outMu sync.Mutex
	printLine := func(line string) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(out, line)
	}
	for _, ev := range co.events {
		s.On(ev, func(data json.RawMessage) {
			printLine(ev + " " + string(data))
		})
	}
	for _, sig := range co.signals {
		s.OnSignal(sig, func() { printLine(sig) })
	}
	success("Connected to %s", s.URL())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), int(cfg.Source.MaxBytes))
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			info("Interrupted, closing session")
			return nil

		case <-s.Done():
			return sessionErr(s.CloseStatus().Err)

		case line, ok := <-lines:
			if !ok {
				flushCtx, cancelFlush := context.WithTimeout(ctx, co.flushFor)
				err := s.Flush(flushCtx)
				cancelFlush()
				return sessionErr(err)
			}
			if line == "" {
				continue
			}
			if co.emitType != "" {
				err = s.Emit(co.emitType, jsonOrString([]byte(line)))
			} else {
				err = s.Send(line)
			}
			if err != nil {
				return sessionErr(err)
			}
		}
	}
}

// jsonOrString passes valid JSON through unchanged and quotes anything else.
func jsonOrString(data []byte) any {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	return string(data)
}
