package autoscaling

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	aastypes "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling/types"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/model"
)

// Cooldown applies to both scale-in and scale-out, in seconds.
const Cooldown int32 = 60

// API registers scalable targets and target-tracking policies.
type API interface {
	RegisterScalableTarget(ctx context.Context, params *applicationautoscaling.RegisterScalableTargetInput, optFns ...func(*applicationautoscaling.Options)) (*applicationautoscaling.RegisterScalableTargetOutput, error)
	PutScalingPolicy(ctx context.Context, params *applicationautoscaling.PutScalingPolicyInput, optFns ...func(*applicationautoscaling.Options)) (*applicationautoscaling.PutScalingPolicyOutput, error)
}

// Configurator keeps a service's desired count under target-tracking control.
type Configurator struct {
	api    API
	logger zerolog.Logger
}

// NewConfigurator creates a new Configurator.
func NewConfigurator(api API, logger zerolog.Logger) *Configurator {
	return &Configurator{
		api:    api,
		logger: logger.With().Str("component", "autoscaling").Logger(),
	}
}

// Apply registers the scalable target, then one tracking policy per non-zero target.
// Both calls overwrite what exists, so Apply can run on every deploy.
func (c *Configurator) Apply(ctx context.Context, policy model.ScalingPolicy) error {
	_, err := c.api.RegisterScalableTarget(ctx, &applicationautoscaling.RegisterScalableTargetInput{
		ServiceNamespace:  aastypes.ServiceNamespaceEcs,
		ResourceId:        aws.String(policy.ResourceID),
		ScalableDimension: aastypes.ScalableDimensionECSServiceDesiredCount,
		MinCapacity:       aws.Int32(policy.MinCapacity),
		MaxCapacity:       aws.Int32(policy.MaxCapacity),
	})
	if err != nil {
		return fmt.Errorf("register scalable target %s: %w", policy.ResourceID, err)
	}

	if policy.TargetCPU > 0 {
		if err := c.putPolicy(ctx, policy, policy.Service+"-cpu-scaling",
			aastypes.MetricTypeECSServiceAverageCPUUtilization, policy.TargetCPU); err != nil {
			return err
		}
	}
	if policy.TargetMemory > 0 {
		if err := c.putPolicy(ctx, policy, policy.Service+"-memory-scaling",
			aastypes.MetricTypeECSServiceAverageMemoryUtilization, policy.TargetMemory); err != nil {
			return err
		}
	}

	c.logger.Info().
		Str("resource_id", policy.ResourceID).
		Int32("min", policy.MinCapacity).
		Int32("max", policy.MaxCapacity).
		Msg("autoscaling configured")
	return nil
}

func (c *Configurator) putPolicy(ctx context.Context, policy model.ScalingPolicy, name string, metric aastypes.MetricType, target int) error {
	_, err := c.api.PutScalingPolicy(ctx, &applicationautoscaling.PutScalingPolicyInput{
		PolicyName:        aws.String(name),
		ServiceNamespace:  aastypes.ServiceNamespaceEcs,
		ResourceId:        aws.String(policy.ResourceID),
		ScalableDimension: aastypes.ScalableDimensionECSServiceDesiredCount,
		PolicyType:        aastypes.PolicyTypeTargetTrackingScaling,
		TargetTrackingScalingPolicyConfiguration: &aastypes.TargetTrackingScalingPolicyConfiguration{
			TargetValue: aws.Float64(float64(target)),
			PredefinedMetricSpecification: &aastypes.PredefinedMetricSpecification{
				PredefinedMetricType: metric,
			},
			ScaleInCooldown:  aws.Int32(Cooldown),
			ScaleOutCooldown: aws.Int32(Cooldown),
		},
	})
	if err != nil {
		return fmt.Errorf("put scaling policy %s: %w", name, err)
	}
	return nil
}
