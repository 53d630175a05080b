package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/autoscaling"
	"github.com/edvin/ecsrollout/internal/awsclient"
	"github.com/edvin/ecsrollout/internal/batch"
	"github.com/edvin/ecsrollout/internal/config"
	"github.com/edvin/ecsrollout/internal/fluentbit"
	"github.com/edvin/ecsrollout/internal/logging"
	"github.com/edvin/ecsrollout/internal/metrics"
	"github.com/edvin/ecsrollout/internal/model"
	"github.com/edvin/ecsrollout/internal/platform"
	"github.com/edvin/ecsrollout/internal/revision"
	"github.com/edvin/ecsrollout/internal/rollout"
	"github.com/edvin/ecsrollout/internal/secrets"
	"github.com/edvin/ecsrollout/internal/sidecar"
)

// Result describes a finished run.
type Result struct {
	RunID string
	// Revision is the registered task definition ARN, or the job definition ARN of a
	// batch-only run.
	Revision string
	Strategy model.Strategy
	Outcome  *rollout.Outcome
	// AutoscalingErr is set when the rollout succeeded but autoscaling could not be
	// configured. It does not fail the run.
	AutoscalingErr error
}

// Runner executes one build-and-deploy invocation end to end.
type Runner struct {
	cfg        *config.Config
	secrets    *secrets.Reconciler
	builder    *revision.Builder
	publisher  *fluentbit.Publisher
	dispatcher *rollout.Dispatcher
	scaler     *autoscaling.Configurator
	jobs       *batch.Registrar
	metrics    *metrics.Recorder
	logger     zerolog.Logger
	now        func() time.Time
}

// NewRunner wires every component to the given clients. Dispatcher options are passed
// through to the rollout dispatcher.
func NewRunner(cfg *config.Config, clients *awsclient.Clients, templates *sidecar.Templates, recorder *metrics.Recorder, logger zerolog.Logger, opts ...rollout.Option) *Runner {
	return &Runner{
		cfg:        cfg,
		secrets:    secrets.NewReconciler(clients.SSM, logger),
		builder:    revision.NewBuilder(clients.ECS, sidecar.NewInjector(templates, logger), logger),
		publisher:  fluentbit.NewPublisher(clients.S3, logger),
		dispatcher: rollout.NewDispatcher(clients.ECS, clients.CodeDeploy, logger, opts...),
		scaler:     autoscaling.NewConfigurator(clients.Autoscaling, logger),
		jobs:       batch.NewRegistrar(clients.Batch, logger),
		metrics:    recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Run validates p and performs the invocation. Validation failures return before any
// remote call. Autoscaling failures are reported in Result.AutoscalingErr only.
func (r *Runner) Run(ctx context.Context, p model.Params) (*Result, error) {
	start := r.now()
	result := &Result{RunID: platform.NewRunID()}

	err := r.run(ctx, p, result)
	r.metrics.ObserveRun(string(result.Strategy), err, r.now().Sub(start))
	if err != nil {
		return nil, err
	}
	r.metrics.Succeeded(p.Cluster, p.Service, r.now())
	return result, nil
}

func (r *Runner) run(ctx context.Context, p model.Params, result *Result) error {
	if err := p.Validate(); err != nil {
		return err
	}

	logger := logging.WithRun(r.logger, result.RunID, p.Cluster, p.Service, p.Environment)
	w := model.ClassifyWorkload(p.Cluster, p.Service, p.ServiceKind)
	logger.Info().Str("kind", string(w.Kind)).Bool("stateful", w.Stateful).Msg("starting deploy")

	resolved, err := r.resolveSecrets(ctx, p, logger)
	if err != nil {
		return err
	}

	if p.OnlyBatch {
		arn, err := r.jobs.Register(ctx, batch.Input{
			Family:  p.Family,
			Image:   p.Image,
			CPU:     p.CPU,
			Memory:  p.Memory,
			Secrets: resolved,
		})
		if err != nil {
			return err
		}
		result.Revision = arn
		logger.Info().Str("job_definition", arn).Msg("batch-only deploy finished")
		return nil
	}

	prev, err := r.builder.Latest(ctx, p.Family)
	if err != nil {
		return err
	}

	routerOpts, err := r.logRouterOptions(ctx, p, w, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("memory", p.Memory).Msg("building task revision")
	input, err := r.builder.Build(prev, revision.Input{
		Family:        p.Family,
		Image:         p.Image,
		ContainerName: p.ContainerName,
		Port:          p.Port,
		Memory:        p.Memory,
		CPU:           p.CPU,
		Serverless:    p.Fargate,
		Secrets:       resolved,
		MarketType:    p.MarketType,
		Workload:      w,
		SkipSidecars:  p.SkipsSidecars(),
		LogRouter:     routerOpts,
	})
	if err != nil {
		return err
	}

	arn, err := r.builder.Register(ctx, input)
	if err != nil {
		return err
	}
	result.Revision = arn
	r.recordSidecars(input.ContainerDefinitions)
	if p.Verbose {
		logger.Info().Str("revision", arn).Msg("registered task revision")
	}

	plan := rollout.NewPlan(p, w, arn)
	result.Strategy = plan.Strategy
	outcome, err := r.dispatcher.Dispatch(ctx, plan)
	if err != nil {
		return err
	}
	result.Outcome = outcome

	if p.Autoscaling.Enabled {
		err := r.scaler.Apply(ctx, model.ScalingPolicy{
			ResourceID:   platform.ServiceResourceID(p.Cluster, p.Service),
			Service:      p.Service,
			MinCapacity:  p.Autoscaling.MinCapacity,
			MaxCapacity:  p.Autoscaling.MaxCapacity,
			TargetCPU:    p.Autoscaling.TargetCPU,
			TargetMemory: p.Autoscaling.TargetMemory,
		})
		if err != nil {
			logger.Error().Err(err).Msg("autoscaling configuration failed; rollout is unaffected")
			r.metrics.AutoscalingFailed()
			result.AutoscalingErr = err
		}
	}

	logger.Info().Str("revision", arn).Str("strategy", string(plan.Strategy)).Msg("deploy finished")
	return nil
}

// resolveSecrets reads the secret set. Batch-only runs always need it; task revisions only
// when secret management is enabled.
func (r *Runner) resolveSecrets(ctx context.Context, p model.Params, logger zerolog.Logger) ([]ecstypes.Secret, error) {
	if p.DisableSecrets && !p.OnlyBatch {
		logger.Info().Msg("secret management disabled, attaching no secrets")
		return []ecstypes.Secret{}, nil
	}

	resolved, err := r.secrets.Resolve(ctx, p.Environment, p.ServicePaths)
	if err != nil {
		return nil, err
	}
	r.metrics.SecretsResolved(len(resolved))

	if p.Verbose {
		for _, s := range resolved {
			logger.Info().Str("name", aws.ToString(s.Name)).Str("value_from", aws.ToString(s.ValueFrom)).Msg("secret")
		}
	}
	return resolved, nil
}

// logRouterOptions publishes the destinations file when the revision will carry a log
// router reading it from S3. Custom router images ship their own config.
func (r *Runner) logRouterOptions(ctx context.Context, p model.Params, w model.Workload, logger zerolog.Logger) (sidecar.LogRouterOptions, error) {
	if p.SkipsSidecars() || !sidecar.RoutesLogs(w.Kind) {
		return sidecar.LogRouterOptions{}, nil
	}
	if p.FluentImage != "" {
		logger.Info().Str("image", p.FluentImage).Msg("using custom log router image")
		return sidecar.LogRouterOptions{CustomImage: p.FluentImage}, nil
	}

	bucket := fluentbit.BucketName(p.Environment, r.cfg.LoggingBucketSuffix)
	location, err := r.publisher.Publish(ctx, bucket, fluentbit.Settings{
		ESHost:        r.cfg.ESHost,
		ContainerName: p.ContainerName,
		IndexName:     fluentbit.IndexName(w.Kind, p.ContainerName, p.Environment, r.cfg.Region),
		Region:        r.cfg.Region,
	})
	if err != nil {
		return sidecar.LogRouterOptions{}, fmt.Errorf("publish log router config: %w", err)
	}
	return sidecar.LogRouterOptions{ConfigLocation: location}, nil
}

func (r *Runner) recordSidecars(containers []ecstypes.ContainerDefinition) {
	for i := 1; i < len(containers); i++ {
		r.metrics.SidecarRegistered(aws.ToString(containers[i].Name))
	}
}
