package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/ecsrollout/internal/config"
	"github.com/edvin/ecsrollout/internal/logging"
)

type rootOpts struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:          "ecsrollout",
		Short:        "Build the next ECS task revision of a service and roll it out.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.AddCommand(
		newDeploy(opts).Command(),
		newFluentConfig(opts).Command(),
	)
	return cmd
}

func (opts *rootOpts) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	opts.cfg = cfg
	opts.logger = logging.NewLogger(cfg)
	return nil
}
