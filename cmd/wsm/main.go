package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vango-dev/wsm/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦ ╦╔═╗╔╦╗
  ║║║╚═╗║║║
  ╚╩╝╚═╝╩ ╩
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "wsm",
		Short: "Resilient WebSocket sessions over the opcode framing protocol",
		Long: `wsm opens and serves WebSocket sessions that speak a one-byte-opcode
framing protocol. Client sessions survive network interruptions:

  • Heartbeats detect silent connection loss
  • Abnormal closes reconnect with exponential backoff
  • Sends made while disconnected are flushed in order
  • JSON envelopes are routed by their "type" field

Settings are read from wsm.json when present; flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to wsm.json (default: search from the working directory)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored error output")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if opts.noColor {
			errors.DisableColors()
		}
		errors.SetStyle(errorStyle(opts.logFormat, opts.noColor, os.Stderr))
	}

	rootCmd.AddCommand(
		initCmd(),
		connectCmd(opts),
		sendCmd(opts),
		serveCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

// errorStyle picks the layout for errors printed on f. JSON logs get JSON
// errors; anything that is not an interactive terminal gets one line.
func errorStyle(logFormat string, noColor bool, f *os.File) errors.Style {
	switch {
	case strings.EqualFold(logFormat, "json"):
		return errors.StyleJSON
	case noColor || !isTerminal(f):
		return errors.StyleCompact
	default:
		return errors.StyleFull
	}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// printBanner prints the wsm ASCII art banner.
func printBanner() {
	fmt.Fprint(os.Stderr, banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}
