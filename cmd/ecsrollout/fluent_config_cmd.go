package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/ecsrollout/internal/fluentbit"
	"github.com/edvin/ecsrollout/internal/model"
	"github.com/edvin/ecsrollout/internal/sidecar"
)

type fluentConfigOpts struct {
	*rootOpts
	service       string
	containerName string
	environment   string
	output        string
}

func newFluentConfig(parent *rootOpts) *fluentConfigOpts {
	return &fluentConfigOpts{rootOpts: parent}
}

func (opts *fluentConfigOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fluent-config",
		Short:   "Render the log router destinations file to a local path.",
		Example: "  ecsrollout fluent-config --service lightserver --container-name lightserver --environment production -o logDestinations.conf",
		Args:    cobra.NoArgs,
		RunE:    opts.RunE,
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.service, "service", "", "ECS service name, used to pick the index")
	fs.StringVar(&opts.containerName, "container-name", "", "primary container name")
	fs.StringVar(&opts.environment, "environment", "", "deployment environment")
	fs.StringVarP(&opts.output, "output", "o", "logDestinations.conf", "file to write")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("container-name")
	_ = cmd.MarkFlagRequired("environment")
	return cmd
}

func (opts *fluentConfigOpts) RunE(_ *cobra.Command, _ []string) error {
	content, err := opts.render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	opts.logger.Info().Str("path", opts.output).Msg("fluent-bit config written")
	return nil
}

func (opts *fluentConfigOpts) render() (string, error) {
	kind := model.ClassifyService(opts.service)
	if !sidecar.RoutesLogs(kind) {
		return "", fmt.Errorf("service %q does not run a log router", opts.service)
	}
	return fluentbit.Render(fluentbit.Settings{
		ESHost:        opts.cfg.ESHost,
		ContainerName: opts.containerName,
		IndexName:     fluentbit.IndexName(kind, opts.containerName, opts.environment, opts.cfg.Region),
		Region:        opts.cfg.Region,
	})
}
