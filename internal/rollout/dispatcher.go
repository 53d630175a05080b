package rollout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	cdtypes "github.com/aws/aws-sdk-go-v2/service/codedeploy/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/model"
)

// ECSAPI is the ECS surface used to roll a service onto a revision.
type ECSAPI interface {
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
	ecs.DescribeServicesAPIClient
	ecs.ListTasksAPIClient
	StopTask(ctx context.Context, params *ecs.StopTaskInput, optFns ...func(*ecs.Options)) (*ecs.StopTaskOutput, error)
}

// CodeDeployAPI submits blue/green deployments.
type CodeDeployAPI interface {
	CreateDeployment(ctx context.Context, params *codedeploy.CreateDeploymentInput, optFns ...func(*codedeploy.Options)) (*codedeploy.CreateDeploymentOutput, error)
}

// StableWaiter blocks until a service reaches steady state.
type StableWaiter interface {
	Wait(ctx context.Context, params *ecs.DescribeServicesInput, maxWaitDur time.Duration, optFns ...func(*ecs.ServicesStableWaiterOptions)) error
}

const (
	DefaultStableTimeout = 10 * time.Minute
	listTasksPageSize    = 100
)

// Outcome reports what a dispatch did.
type Outcome struct {
	Strategy     model.Strategy
	DeploymentID string
	StoppedTasks int
}

// Dispatcher executes rollout plans.
type Dispatcher struct {
	ecs           ECSAPI
	deploy        CodeDeployAPI
	waiter        StableWaiter
	stableTimeout time.Duration
	logger        zerolog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithWaiter replaces the ECS services-stable waiter.
func WithWaiter(w StableWaiter) Option {
	return func(d *Dispatcher) { d.waiter = w }
}

// WithStableTimeout bounds how long DrainRestart waits for the drained service.
func WithStableTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.stableTimeout = timeout }
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(ecsClient ECSAPI, deployClient CodeDeployAPI, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ecs:           ecsClient,
		deploy:        deployClient,
		stableTimeout: DefaultStableTimeout,
		logger:        logger.With().Str("component", "rollout").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.waiter == nil {
		d.waiter = ecs.NewServicesStableWaiter(ecsClient)
	}
	return d
}

// Dispatch runs the plan's strategy. Exactly one strategy runs per call.
func (d *Dispatcher) Dispatch(ctx context.Context, plan model.Plan) (*Outcome, error) {
	logger := d.logger.With().Str("strategy", string(plan.Strategy)).Str("revision", plan.Revision).Logger()
	logger.Info().Msg("running deployment")

	switch plan.Strategy {
	case model.StrategyInPlace:
		if err := d.updateService(ctx, plan, plan.DesiredCount); err != nil {
			return nil, err
		}
		return &Outcome{Strategy: plan.Strategy}, nil
	case model.StrategyDrainRestart:
		stopped, err := d.drainRestart(ctx, plan, logger)
		if err != nil {
			return nil, err
		}
		return &Outcome{Strategy: plan.Strategy, StoppedTasks: stopped}, nil
	case model.StrategyBlueGreen:
		id, err := d.blueGreen(ctx, plan)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("deployment_id", id).Msg("blue/green deployment created")
		return &Outcome{Strategy: plan.Strategy, DeploymentID: id}, nil
	}
	return nil, fmt.Errorf("unknown rollout strategy %q", plan.Strategy)
}

func (d *Dispatcher) updateService(ctx context.Context, plan model.Plan, desired int32) error {
	_, err := d.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:        aws.String(plan.Cluster),
		Service:        aws.String(plan.Service),
		DesiredCount:   aws.Int32(desired),
		TaskDefinition: aws.String(plan.Revision),
	})
	if err != nil {
		return fmt.Errorf("update service %s/%s to desired count %d: %w", plan.Cluster, plan.Service, desired, err)
	}
	return nil
}

// drainRestart scales the service to zero, waits for it to settle, stops every task
// still running and scales back up. Once the scale-down succeeded the scale-up is always
// attempted, whatever failed in between.
func (d *Dispatcher) drainRestart(ctx context.Context, plan model.Plan, logger zerolog.Logger) (int, error) {
	if err := d.updateService(ctx, plan, 0); err != nil {
		return 0, err
	}
	logger.Info().Msg("service scaled to zero")

	stopped, drainErr := d.drain(ctx, plan, logger)

	// The previous steps may have failed because ctx ended; scaling up must still happen.
	upErr := d.updateService(context.WithoutCancel(ctx), plan, plan.DesiredCount)
	if upErr == nil {
		logger.Info().Int32("desired_count", plan.DesiredCount).Int("stopped_tasks", stopped).Msg("service scaled back up")
	}
	if err := errors.Join(drainErr, upErr); err != nil {
		return stopped, err
	}
	return stopped, nil
}

func (d *Dispatcher) drain(ctx context.Context, plan model.Plan, logger zerolog.Logger) (int, error) {
	err := d.waiter.Wait(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(plan.Cluster),
		Services: []string{plan.Service},
	}, d.stableTimeout)
	if err != nil {
		return 0, fmt.Errorf("wait for %s/%s to drain: %w", plan.Cluster, plan.Service, err)
	}

	stopped := 0
	paginator := ecs.NewListTasksPaginator(d.ecs, &ecs.ListTasksInput{
		Cluster:     aws.String(plan.Cluster),
		ServiceName: aws.String(plan.Service),
		MaxResults:  aws.Int32(listTasksPageSize),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return stopped, fmt.Errorf("list tasks of %s/%s: %w", plan.Cluster, plan.Service, err)
		}
		for _, task := range page.TaskArns {
			_, err := d.ecs.StopTask(ctx, &ecs.StopTaskInput{
				Cluster: aws.String(plan.Cluster),
				Task:    aws.String(task),
				Reason:  aws.String("drain before revision " + plan.Revision),
			})
			if err != nil {
				return stopped, fmt.Errorf("stop task %s: %w", task, err)
			}
			logger.Debug().Str("task", task).Msg("stopped task")
			stopped++
		}
	}
	return stopped, nil
}

func (d *Dispatcher) blueGreen(ctx context.Context, plan model.Plan) (string, error) {
	content, err := AppSpec(plan)
	if err != nil {
		return "", err
	}

	out, err := d.deploy.CreateDeployment(ctx, &codedeploy.CreateDeploymentInput{
		ApplicationName:     aws.String(plan.Application),
		DeploymentGroupName: aws.String(plan.DeploymentGroup),
		Description:         aws.String("Deploying updates"),
		Revision: &cdtypes.RevisionLocation{
			RevisionType: cdtypes.RevisionLocationTypeAppSpecContent,
			AppSpecContent: &cdtypes.AppSpecContent{
				Content: aws.String(content),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create deployment %s/%s: %w", plan.Application, plan.DeploymentGroup, err)
	}
	return aws.ToString(out.DeploymentId), nil
}
