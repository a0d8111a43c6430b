package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vango-dev/wsm/internal/config"
	"github.com/vango-dev/wsm/internal/errors"
)

type initOptions struct {
	url     string
	address string
	force   bool
}

func initCmd() *cobra.Command {
	var o initOptions

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a wsm.json",
		Long: `Write a wsm.json with default settings to dir (default: the working
directory).

When the file already exists, the setting flags update it in place and
everything else is kept. --force replaces it with defaults.

Examples:
  wsm init
  wsm init --url wss://example.com/_ws
  wsm init ./deploy --addr :9000 --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			path, created, err := runInit(dir, o)
			if err != nil {
				return err
			}
			if created {
				success("Created %s", path)
			} else {
				success("Updated %s", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.url, "url", "u", "", "WebSocket URL for connect and send")
	cmd.Flags().StringVarP(&o.address, "addr", "a", "", "Listen address for serve")
	cmd.Flags().BoolVarP(&o.force, "force", "f", false, "Overwrite an existing wsm.json with defaults")

	return cmd
}

// runInit creates or updates dir/wsm.json. It reports whether a new file
// was written.
func runInit(dir string, o initOptions) (string, bool, error) {
	path := filepath.Join(dir, config.ConfigFileName)
	hasSettings := o.url != "" || o.address != ""

	if config.Exists(dir) && !o.force {
		if !hasSettings {
			return "", false, errors.New("W043").WithDetail(path + " is already present.")
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return "", false, err
		}
		o.apply(cfg)
		if err := cfg.Validate(); err != nil {
			return "", false, err
		}
		if err := cfg.Save(); err != nil {
			return "", false, err
		}
		return path, false, nil
	}

	cfg := config.New()
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return "", false, err
	}
	if err := cfg.SaveTo(path); err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (o initOptions) apply(cfg *config.Config) {
	if o.url != "" {
		cfg.URL = o.url
	}
	if o.address != "" {
		cfg.Server.Address = o.address
	}
}
