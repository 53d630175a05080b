package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/edvin/ecsrollout/internal/awsclient"
	"github.com/edvin/ecsrollout/internal/metrics"
	"github.com/edvin/ecsrollout/internal/model"
	"github.com/edvin/ecsrollout/internal/pipeline"
	"github.com/edvin/ecsrollout/internal/rollout"
	"github.com/edvin/ecsrollout/internal/sidecar"
)

type deployOpts struct {
	*rootOpts
	file          string
	stableTimeout time.Duration
	flags         model.Params
	serviceKind   string
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent, flags: model.DefaultParams()}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Register a new task revision and deploy it.",
		Example: `  ecsrollout deploy --cluster production --service api --family api-production \
    --port 8080 --memory 1024 --capacity-provider production-cp --container-name api \
    --environment production --service-paths api,GLOBAL
  ecsrollout deploy -f deploy/api.yaml --image registry.example.com/api:42`,
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}

	f := &opts.flags
	fs := cmd.Flags()
	fs.StringVarP(&opts.file, "file", "f", "", "YAML file with deploy parameters; flags override it")
	fs.DurationVar(&opts.stableTimeout, "stable-timeout", rollout.DefaultStableTimeout, "how long a drain-restart waits for the service to settle")

	fs.StringVar(&f.Cluster, "cluster", "", "ECS cluster name")
	fs.StringVar(&f.Service, "service", "", "ECS service name")
	fs.StringVar(&f.Family, "family", "", "task definition family")
	fs.IntVar(&f.Port, "port", 0, "primary container port")
	fs.StringVar(&f.Memory, "memory", "", "task memory in MiB")
	fs.StringVar(&f.CPU, "cpu", "", "task CPU units")
	fs.StringVar(&f.CapacityProvider, "capacity-provider", "", "capacity provider for blue/green deployments")
	fs.StringVar(&f.ContainerName, "container-name", "", "primary container name")
	fs.StringVar(&f.Environment, "environment", "", "deployment environment")
	fs.StringSliceVar(&f.ServicePaths, "service-paths", nil, "parameter store paths holding the service secrets")
	fs.StringVar(&f.Image, "image", "", "container image (defaults to $PRODUCTION_IMAGE)")
	fs.StringVar(&opts.serviceKind, "service-kind", "", "override the service kind derived from --service")
	fs.BoolVar(&f.Fargate, "fargate", false, "run on Fargate instead of EC2")
	fs.StringVar(&f.MarketType, "market-type", "", "value of the MARKETS variable")
	fs.StringVar(&f.FluentImage, "fluent-image", "", "custom log router image with a baked-in config")
	fs.Int32Var(&f.DesiredCount, "desired-count", f.DesiredCount, "desired task count after the rollout")
	fs.BoolVar(&f.DisableSecrets, "disable-secrets", false, "attach no secrets to the task revision")
	fs.BoolVar(&f.OnlyBatch, "only-batch", false, "only register a new batch job definition")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "log resolved secrets and the registered revision")
	fs.StringVar(&f.DeploymentApp, "deployment-app", "", "CodeDeploy application for blue/green")
	fs.StringVar(&f.DeploymentGroup, "deployment-group", "", "CodeDeploy deployment group for blue/green")
	fs.BoolVar(&f.Autoscaling.Enabled, "autoscaling", false, "configure service autoscaling after the rollout")
	fs.Int32Var(&f.Autoscaling.MinCapacity, "min-capacity", f.Autoscaling.MinCapacity, "autoscaling minimum task count")
	fs.Int32Var(&f.Autoscaling.MaxCapacity, "max-capacity", f.Autoscaling.MaxCapacity, "autoscaling maximum task count")
	fs.IntVar(&f.Autoscaling.TargetCPU, "target-cpu", 0, "target CPU utilization percent, 0 disables")
	fs.IntVar(&f.Autoscaling.TargetMemory, "target-memory", 0, "target memory utilization percent, 0 disables")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, _ []string) error {
	p, err := opts.params(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := awsclient.New(ctx, opts.cfg)
	if err != nil {
		return err
	}
	templates, err := sidecar.LoadTemplates(opts.cfg.SidecarTemplateDir)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	runner := pipeline.NewRunner(opts.cfg, clients, templates, recorder, opts.logger,
		rollout.WithStableTimeout(opts.stableTimeout))

	result, runErr := runner.Run(ctx, p)
	opts.writeMetrics(recorder)
	if runErr != nil {
		opts.logger.Error().Err(runErr).Msg("deploy failed")
		return runErr
	}

	event := opts.logger.Info().Str("run_id", result.RunID).Str("revision", result.Revision)
	if result.AutoscalingErr != nil {
		event = event.AnErr("autoscaling_error", result.AutoscalingErr)
	}
	event.Msg("deploy succeeded")
	return nil
}

// params layers defaults, the optional file and explicitly set flags, in that order.
func (opts *deployOpts) params(fs *pflag.FlagSet) (model.Params, error) {
	p := model.DefaultParams()
	if opts.file != "" {
		if err := model.LoadParamsFile(opts.file, &p); err != nil {
			return model.Params{}, err
		}
	}

	f := opts.flags
	overrides := map[string]func(){
		"cluster":           func() { p.Cluster = f.Cluster },
		"service":           func() { p.Service = f.Service },
		"family":            func() { p.Family = f.Family },
		"port":              func() { p.Port = f.Port },
		"memory":            func() { p.Memory = f.Memory },
		"cpu":               func() { p.CPU = f.CPU },
		"capacity-provider": func() { p.CapacityProvider = f.CapacityProvider },
		"container-name":    func() { p.ContainerName = f.ContainerName },
		"environment":       func() { p.Environment = f.Environment },
		"service-paths":     func() { p.ServicePaths = f.ServicePaths },
		"image":             func() { p.Image = f.Image },
		"service-kind":      func() { p.ServiceKind = model.ServiceKind(opts.serviceKind) },
		"fargate":           func() { p.Fargate = f.Fargate },
		"market-type":       func() { p.MarketType = f.MarketType },
		"fluent-image":      func() { p.FluentImage = f.FluentImage },
		"desired-count":     func() { p.DesiredCount = f.DesiredCount },
		"disable-secrets":   func() { p.DisableSecrets = f.DisableSecrets },
		"only-batch":        func() { p.OnlyBatch = f.OnlyBatch },
		"verbose":           func() { p.Verbose = f.Verbose },
		"deployment-app":    func() { p.DeploymentApp = f.DeploymentApp },
		"deployment-group":  func() { p.DeploymentGroup = f.DeploymentGroup },
		"autoscaling":       func() { p.Autoscaling.Enabled = f.Autoscaling.Enabled },
		"min-capacity":      func() { p.Autoscaling.MinCapacity = f.Autoscaling.MinCapacity },
		"max-capacity":      func() { p.Autoscaling.MaxCapacity = f.Autoscaling.MaxCapacity },
		"target-cpu":        func() { p.Autoscaling.TargetCPU = f.Autoscaling.TargetCPU },
		"target-memory":     func() { p.Autoscaling.TargetMemory = f.Autoscaling.TargetMemory },
	}
	fs.Visit(func(flag *pflag.Flag) {
		if apply, ok := overrides[flag.Name]; ok {
			apply()
		}
	})

	if p.Image == "" && opts.cfg != nil {
		p.Image = opts.cfg.ProductionImage
	}
	return p, nil
}

func (opts *deployOpts) writeMetrics(recorder *metrics.Recorder) {
	if opts.cfg.MetricsTextfile == "" {
		return
	}
	if err := recorder.WriteTextfile(opts.cfg.MetricsTextfile); err != nil {
		opts.logger.Warn().Err(err).Msg("failed to write metrics")
	}
}
