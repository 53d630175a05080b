package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/model"
)

// ErrNoJobDefinition is returned when a family has no active job definition to derive from.
var ErrNoJobDefinition = errors.New("no active job definition")

// API reads and registers job definitions.
type API interface {
	awsbatch.DescribeJobDefinitionsAPIClient
	RegisterJobDefinition(ctx context.Context, params *awsbatch.RegisterJobDefinitionInput, optFns ...func(*awsbatch.Options)) (*awsbatch.RegisterJobDefinitionOutput, error)
}

// Input is what changes between two revisions of a job definition.
type Input struct {
	Family  string
	Image   string
	CPU     string
	Memory  string
	Secrets []ecstypes.Secret
}

// Registrar derives new job definition revisions from the latest active one.
type Registrar struct {
	api    API
	logger zerolog.Logger
}

// NewRegistrar creates a new Registrar.
func NewRegistrar(api API, logger zerolog.Logger) *Registrar {
	return &Registrar{
		api:    api,
		logger: logger.With().Str("component", "batch").Logger(),
	}
}

// Latest returns the highest active revision of the family.
func (r *Registrar) Latest(ctx context.Context, family string) (*batchtypes.JobDefinition, error) {
	var latest *batchtypes.JobDefinition

	paginator := awsbatch.NewDescribeJobDefinitionsPaginator(r.api, &awsbatch.DescribeJobDefinitionsInput{
		JobDefinitionName: aws.String(family),
		Status:            aws.String("ACTIVE"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe job definitions %s: %w", family, err)
		}
		for i := range page.JobDefinitions {
			def := &page.JobDefinitions[i]
			if latest == nil || aws.ToInt32(def.Revision) > aws.ToInt32(latest.Revision) {
				latest = def
			}
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("%w for family %s", ErrNoJobDefinition, family)
	}
	return latest, nil
}

// Build derives the registration request of the next revision. prev is not modified.
func Build(prev *batchtypes.JobDefinition, in Input) (*awsbatch.RegisterJobDefinitionInput, error) {
	vcpu, ok := model.VCPUForUnits(in.CPU)
	if !ok {
		return nil, fmt.Errorf("cpu %q has no vCPU equivalent", in.CPU)
	}

	var props batchtypes.ContainerProperties
	if prev.ContainerProperties != nil {
		props = *prev.ContainerProperties
	}
	props.Image = aws.String(in.Image)
	props.Secrets = toBatchSecrets(in.Secrets)
	// Fargate takes its sizing from resource requirements only.
	props.Vcpus = nil
	props.Memory = nil
	props.ResourceRequirements = []batchtypes.ResourceRequirement{
		{Type: batchtypes.ResourceTypeVcpu, Value: aws.String(vcpu)},
		{Type: batchtypes.ResourceTypeMemory, Value: aws.String(in.Memory)},
	}

	return &awsbatch.RegisterJobDefinitionInput{
		JobDefinitionName:    aws.String(in.Family),
		Type:                 batchtypes.JobDefinitionTypeContainer,
		ContainerProperties:  &props,
		PlatformCapabilities: []batchtypes.PlatformCapability{batchtypes.PlatformCapabilityFargate},
		Parameters:           prev.Parameters,
		RetryStrategy:        prev.RetryStrategy,
		Timeout:              prev.Timeout,
		PropagateTags:        prev.PropagateTags,
		Tags:                 prev.Tags,
	}, nil
}

// Register derives and registers the next revision of in.Family, returning its ARN.
func (r *Registrar) Register(ctx context.Context, in Input) (string, error) {
	prev, err := r.Latest(ctx, in.Family)
	if err != nil {
		return "", err
	}

	req, err := Build(prev, in)
	if err != nil {
		return "", err
	}

	out, err := r.api.RegisterJobDefinition(ctx, req)
	if err != nil {
		return "", fmt.Errorf("register job definition %s: %w", in.Family, err)
	}

	arn := aws.ToString(out.JobDefinitionArn)
	r.logger.Info().
		Str("family", in.Family).
		Int32("revision", aws.ToInt32(out.Revision)).
		Int("secrets", len(in.Secrets)).
		Msg("job definition registered")
	return arn, nil
}

func toBatchSecrets(secrets []ecstypes.Secret) []batchtypes.Secret {
	out := make([]batchtypes.Secret, 0, len(secrets))
	for _, s := range secrets {
		out = append(out, batchtypes.Secret{Name: s.Name, ValueFrom: s.ValueFrom})
	}
	return out
}
