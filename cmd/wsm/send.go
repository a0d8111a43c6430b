package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/wsm/internal/config"
	"github.com/vango-dev/wsm/internal/errors"
	"github.com/vango-dev/wsm/internal/source"
	"github.com/vango-dev/wsm/pkg/protocol"
)

type sendOptions struct {
	url         string
	file        string
	eventType   string
	binary      bool
	closeCode   int
	closeReason string
	timeout     time.Duration
}

func sendCmd(opts *globalOptions) *cobra.Command {
	var so sendOptions

	cmd := &cobra.Command{
		Use:   "send [payload]",
		Short: "Send one payload and close",
		Long: `Connect, send one payload, wait until it has been written, then close.

The payload is the argument, or the contents of --file. --file accepts a
path, "-" for standard input, or s3://bucket/key. Binary payloads larger
than the chunk size are split into ordered frames.

Examples:
  wsm send --url ws://localhost:8080/_ws hello
  wsm send --type chat '{"text":"hi"}'
  wsm send --binary --file ./image.png
  wsm send --file s3://my-bucket/messages/welcome.json --type welcome
  wsm send --close-code 3001 --close-reason done ping`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			payload, err := loadPayload(ctx, cfg, so.file, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runSend(ctx, cfg, so, payload)
		},
	}

	cmd.Flags().StringVarP(&so.url, "url", "u", "", "WebSocket URL (default from wsm.json)")
	cmd.Flags().StringVarP(&so.file, "file", "f", "", "Read the payload from a file, - or s3://bucket/key")
	cmd.Flags().StringVarP(&so.eventType, "type", "t", "", "Wrap the payload in an envelope of this type")
	cmd.Flags().BoolVarP(&so.binary, "binary", "b", false, "Send the payload as BINARY")
	cmd.Flags().IntVar(&so.closeCode, "close-code", 0, "Close with this application code (3000-3999)")
	cmd.Flags().StringVar(&so.closeReason, "close-reason", "", "Reason sent with --close-code")
	cmd.Flags().DurationVar(&so.timeout, "timeout", 30*time.Second, "Give up when the payload is not written in time")

	return cmd
}

// loadPayload returns the argument or the contents of ref.
func loadPayload(ctx context.Context, cfg *config.Config, ref string, args []string, stdin io.Reader) ([]byte, error) {
	if ref == "" {
		if len(args) == 0 {
			return nil, errors.New("W080").
				WithDetail("No payload given.").
				WithSuggestion("Pass the payload as an argument or use --file")
		}
		return []byte(args[0]), nil
	}
	if len(args) > 0 {
		return nil, errors.New("W080").WithDetail("Use either a payload argument or --file, not both.")
	}

	opts := []source.Option{
		source.WithMaxBytes(cfg.Source.MaxBytes),
		source.WithStdin(stdin),
	}
	if strings.HasPrefix(ref, "s3://") {
		client, err := source.NewS3Client(ctx, source.S3Config{
			Region:       cfg.Source.S3.Region,
			Endpoint:     cfg.Source.S3.Endpoint,
			UsePathStyle: cfg.Source.S3.UsePathStyle,
			Anonymous:    cfg.Source.S3.Anonymous,
		})
		if err != nil {
			return nil, sourceErr(err, ref)
		}
		opts = append(opts, source.WithS3(client))
	}

	data, err := source.NewLoader(opts...).Load(ctx, ref)
	if err != nil {
		return nil, sourceErr(err, ref)
	}
	return data, nil
}

func runSend(parent context.Context, cfg *config.Config, so sendOptions, payload []byte) error {
	if so.closeCode != 0 {
		if err := protocol.ValidateCloseCode(protocol.CloseCode(so.closeCode)); err != nil {
			return sessionErr(err)
		}
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, so.timeout)
	defer cancel()

	serveMetrics(ctx, cfg, logger)

	s, err := openSession(ctx, cfg, so.url, logger)
	if err != nil {
		return err
	}

	switch {
	case so.binary:
		err = s.SendOpcode(payload, protocol.OpBinary)
	case so.eventType != "":
		err = s.Emit(so.eventType, jsonOrString(payload))
	default:
		err = s.Send(string(payload))
	}
	if err == nil {
		err = s.Flush(ctx)
	}
	if err != nil {
		s.Close()
		return sessionErr(err)
	}

	if so.closeCode != 0 {
		err = s.CloseWith(protocol.CloseCode(so.closeCode), so.closeReason)
	} else {
		err = s.Close()
	}
	if err != nil {
		return sessionErr(err)
	}

	success("Sent %d bytes to %s", len(payload), s.URL())
	return nil
}
