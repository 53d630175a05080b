package revision

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/fluentbit"
	"github.com/edvin/ecsrollout/internal/model"
	"github.com/edvin/ecsrollout/internal/sidecar"
)

// LogVolume is shared by every container of an instance-style task so the log router can
// tail application log files.
const LogVolume = "logs"

// MarketsVariable carries the market type into the primary container.
const MarketsVariable = "MARKETS"

var ErrNoRevision = errors.New("no previous task revision")

// API is the ECS surface used to read and register task revisions.
type API interface {
	ListTaskDefinitions(ctx context.Context, params *ecs.ListTaskDefinitionsInput, optFns ...func(*ecs.Options)) (*ecs.ListTaskDefinitionsOutput, error)
	DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
}

// Previous is the registered revision a new one is derived from. It is read-only.
type Previous struct {
	Definition *ecstypes.TaskDefinition
	Tags       []ecstypes.Tag
}

// Input holds the computed fields layered onto the previous revision.
type Input struct {
	Family        string
	Image         string
	ContainerName string
	Port          int
	Memory        string
	CPU           string
	// Serverless selects Fargate-style execution; instance-style (EC2) otherwise.
	Serverless bool
	// Secrets replaces the primary container's secrets. Nil attaches an empty list.
	Secrets    []ecstypes.Secret
	MarketType string

	Workload     model.Workload
	SkipSidecars bool
	LogRouter    sidecar.LogRouterOptions
}

// Builder derives and registers task revisions.
type Builder struct {
	api      API
	injector *sidecar.Injector
	logger   zerolog.Logger
}

// NewBuilder creates a new Builder.
func NewBuilder(api API, injector *sidecar.Injector, logger zerolog.Logger) *Builder {
	return &Builder{
		api:      api,
		injector: injector,
		logger:   logger.With().Str("component", "revision").Logger(),
	}
}

// Latest returns the newest revision of family, with its tags.
func (b *Builder) Latest(ctx context.Context, family string) (*Previous, error) {
	list, err := b.api.ListTaskDefinitions(ctx, &ecs.ListTaskDefinitionsInput{
		FamilyPrefix: aws.String(family),
		MaxResults:   aws.Int32(1),
		Sort:         ecstypes.SortOrderDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("list task definitions for %s: %w", family, err)
	}
	if len(list.TaskDefinitionArns) == 0 {
		return nil, fmt.Errorf("%w for family %s", ErrNoRevision, family)
	}
	arn := list.TaskDefinitionArns[len(list.TaskDefinitionArns)-1]

	out, err := b.api.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: aws.String(arn),
		Include:        []ecstypes.TaskDefinitionField{ecstypes.TaskDefinitionFieldTags},
	})
	if err != nil {
		return nil, fmt.Errorf("describe task definition %s: %w", arn, err)
	}
	if out.TaskDefinition == nil || len(out.TaskDefinition.ContainerDefinitions) == 0 {
		return nil, fmt.Errorf("%w: %s has no containers", ErrNoRevision, arn)
	}

	b.logger.Info().Str("revision", arn).Int("containers", len(out.TaskDefinition.ContainerDefinitions)).Msg("found previous revision")
	return &Previous{Definition: out.TaskDefinition, Tags: out.Tags}, nil
}

// Build assembles the registration payload of the next revision. The previous revision is
// never modified; containers keep their order and sidecars are only ever appended.
func (b *Builder) Build(prev *Previous, in Input) (*ecs.RegisterTaskDefinitionInput, error) {
	if prev == nil || prev.Definition == nil || len(prev.Definition.ContainerDefinitions) == 0 {
		return nil, ErrNoRevision
	}
	def := prev.Definition

	containers := append([]ecstypes.ContainerDefinition(nil), def.ContainerDefinitions...)
	primary := &containers[0]

	// 1. Ports.
	primary.PortMappings = PortMappings(in.Port, in.Serverless)

	// 2. Secrets.
	if in.Secrets != nil {
		primary.Secrets = append([]ecstypes.Secret(nil), in.Secrets...)
	} else {
		primary.Secrets = []ecstypes.Secret{}
	}

	// 3. Image, name, environment.
	primary.Image = aws.String(in.Image)
	primary.Name = aws.String(in.ContainerName)
	if in.MarketType != "" {
		ReplaceEnvironment(primary, []ecstypes.KeyValuePair{{
			Name:  aws.String(MarketsVariable),
			Value: aws.String(in.MarketType),
		}})
	}
	if in.Serverless {
		primary.Privileged = aws.Bool(false)
	}

	// 4. Sidecars.
	if in.SkipSidecars {
		b.logger.Info().Msg("skipping sidecars for non-production environment")
	} else {
		var err error
		if containers, err = b.injector.InjectLogRouter(containers, in.Workload, in.LogRouter); err != nil {
			return nil, err
		}
		if containers, err = b.injector.InjectTelemetry(containers, in.Workload); err != nil {
			return nil, err
		}
	}

	// 5. Execution style.
	input := &ecs.RegisterTaskDefinitionInput{
		Family:               aws.String(in.Family),
		TaskRoleArn:          def.TaskRoleArn,
		ExecutionRoleArn:     def.ExecutionRoleArn,
		Memory:               aws.String(in.Memory),
		Cpu:                  def.Cpu,
		Volumes:              withLogVolume(def.Volumes),
		PlacementConstraints: def.PlacementConstraints,
	}
	if in.CPU != "" {
		input.Cpu = aws.String(in.CPU)
	}
	if len(prev.Tags) > 0 {
		input.Tags = prev.Tags
	}

	if in.Serverless {
		input.NetworkMode = ecstypes.NetworkModeAwsvpc
		input.RequiresCompatibilities = []ecstypes.Compatibility{ecstypes.CompatibilityFargate}
		input.RuntimePlatform = &ecstypes.RuntimePlatform{
			CpuArchitecture:       ecstypes.CPUArchitectureArm64,
			OperatingSystemFamily: ecstypes.OSFamilyLinux,
		}
	} else {
		input.NetworkMode = ecstypes.NetworkModeBridge
		input.RequiresCompatibilities = []ecstypes.Compatibility{ecstypes.CompatibilityEc2}
		for i := range containers {
			containers[i].MountPoints = withLogMount(containers[i].MountPoints)
		}
	}
	input.ContainerDefinitions = containers

	return input, nil
}

// Register submits the payload. A rejection is returned as is; nothing is retried.
func (b *Builder) Register(ctx context.Context, input *ecs.RegisterTaskDefinitionInput) (string, error) {
	b.logger.Info().
		Str("family", aws.ToString(input.Family)).
		Str("memory", aws.ToString(input.Memory)).
		Str("network_mode", string(input.NetworkMode)).
		Int("containers", len(input.ContainerDefinitions)).
		Msg("registering task revision")

	out, err := b.api.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return "", fmt.Errorf("register task definition %s: %w", aws.ToString(input.Family), err)
	}
	if out.TaskDefinition == nil || out.TaskDefinition.TaskDefinitionArn == nil {
		return "", fmt.Errorf("register task definition %s: response carries no revision ARN", aws.ToString(input.Family))
	}
	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

// ReplaceEnvironment discards every environment variable of c and sets vars instead.
// It does not merge.
func ReplaceEnvironment(c *ecstypes.ContainerDefinition, vars []ecstypes.KeyValuePair) {
	c.Environment = append([]ecstypes.KeyValuePair(nil), vars...)
}

func withLogVolume(prev []ecstypes.Volume) []ecstypes.Volume {
	out := make([]ecstypes.Volume, 0, len(prev)+1)
	for _, v := range prev {
		if aws.ToString(v.Name) != LogVolume {
			out = append(out, v)
		}
	}
	return append(out, ecstypes.Volume{Name: aws.String(LogVolume)})
}

func withLogMount(prev []ecstypes.MountPoint) []ecstypes.MountPoint {
	out := make([]ecstypes.MountPoint, 0, len(prev)+1)
	for _, m := range prev {
		if aws.ToString(m.SourceVolume) != LogVolume {
			out = append(out, m)
		}
	}
	return append(out, ecstypes.MountPoint{
		SourceVolume:  aws.String(LogVolume),
		ContainerPath: aws.String(fluentbit.LogPath),
	})
}
