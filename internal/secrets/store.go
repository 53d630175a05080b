package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog"
)

// API is the Parameter Store surface the reconciler reads from.
type API interface {
	ssm.GetParametersByPathAPIClient
	ListTagsForResource(ctx context.Context, params *ssm.ListTagsForResourceInput, optFns ...func(*ssm.Options)) (*ssm.ListTagsForResourceOutput, error)
}

// Parameters tagged delete=1 are scheduled for removal and never attached.
const (
	deleteTagKey   = "delete"
	deleteTagValue = "1"
)

// Reconciler reads secrets for a set of service paths and deduplicates them.
type Reconciler struct {
	api    API
	logger zerolog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(api API, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		api:    api,
		logger: logger.With().Str("component", "secrets").Logger(),
	}
}

// Resolve fetches every entry under /{environment}/{path} for each service path and
// reconciles them into a secret list. Any store error aborts: a partial secret set must
// never be deployed.
func (r *Reconciler) Resolve(ctx context.Context, environment string, servicePaths []string) ([]ecstypes.Secret, error) {
	entries, err := r.Fetch(ctx, environment, servicePaths)
	if err != nil {
		return nil, err
	}

	secrets, err := Reconcile(entries)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Int("entries", len(entries)).
		Int("secrets", len(secrets)).
		Msg("resolved secrets")
	return secrets, nil
}

// Fetch exhausts every page under each path prefix, skipping entries tagged for deletion.
func (r *Reconciler) Fetch(ctx context.Context, environment string, servicePaths []string) ([]Entry, error) {
	var entries []Entry

	for _, servicePath := range servicePaths {
		prefix := fmt.Sprintf("/%s/%s", environment, servicePath)
		paginator := ssm.NewGetParametersByPathPaginator(r.api, &ssm.GetParametersByPathInput{
			Path: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("list parameters under %s: %w", prefix, err)
			}

			for _, param := range page.Parameters {
				fullName := aws.ToString(param.Name)
				deleted, err := r.markedForDeletion(ctx, fullName)
				if err != nil {
					return nil, err
				}
				if deleted {
					r.logger.Debug().Str("parameter", fullName).Msg("skipping parameter tagged for deletion")
					continue
				}
				entries = append(entries, Entry{
					Name:      strings.TrimPrefix(fullName, prefix+"/"),
					ValueFrom: aws.ToString(param.ARN),
				})
			}
		}
	}

	return entries, nil
}

func (r *Reconciler) markedForDeletion(ctx context.Context, name string) (bool, error) {
	out, err := r.api.ListTagsForResource(ctx, &ssm.ListTagsForResourceInput{
		ResourceType: ssmtypes.ResourceTypeForTaggingParameter,
		ResourceId:   aws.String(name),
	})
	if err != nil {
		return false, fmt.Errorf("list tags for parameter %s: %w", name, err)
	}
	for _, tag := range out.TagList {
		if aws.ToString(tag.Key) == deleteTagKey && aws.ToString(tag.Value) == deleteTagValue {
			return true, nil
		}
	}
	return false, nil
}
