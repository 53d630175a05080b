package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ssm.GetParametersByPathOutput), args.Error(1)
}

func (m *mockSSM) ListTagsForResource(ctx context.Context, params *ssm.ListTagsForResourceInput, optFns ...func(*ssm.Options)) (*ssm.ListTagsForResourceOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ssm.ListTagsForResourceOutput), args.Error(1)
}

func param(name, arn string) ssmtypes.Parameter {
	return ssmtypes.Parameter{Name: aws.String(name), ARN: aws.String(arn)}
}

func pathIs(path string, token *string) any {
	return mock.MatchedBy(func(in *ssm.GetParametersByPathInput) bool {
		if aws.ToString(in.Path) != path {
			return false
		}
		if token == nil {
			return in.NextToken == nil
		}
		return aws.ToString(in.NextToken) == *token
	})
}

func tagsFor(name string) any {
	return mock.MatchedBy(func(in *ssm.ListTagsForResourceInput) bool {
		return aws.ToString(in.ResourceId) == name && in.ResourceType == ssmtypes.ResourceTypeForTaggingParameter
	})
}

func noTags() *ssm.ListTagsForResourceOutput {
	return &ssm.ListTagsForResourceOutput{}
}

func TestResolve_ExhaustsPagesAndMergesGlobal(t *testing.T) {
	api := &mockSSM{}
	ctx := context.Background()

	page2 := "page-2"
	api.On("GetParametersByPath", ctx, pathIs("/production/api", nil)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{param("/production/api/API_KEY", serviceARN)},
		NextToken:  aws.String(page2),
	}, nil).Once()
	api.On("GetParametersByPath", ctx, pathIs("/production/api", &page2)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{param("/production/api/DB_URL", "arn:db")},
	}, nil).Once()
	api.On("GetParametersByPath", ctx, pathIs("/production/GLOBAL", nil)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{param("/production/GLOBAL/API_KEY", globalARN)},
	}, nil).Once()

	api.On("ListTagsForResource", ctx, tagsFor("/production/api/API_KEY")).Return(noTags(), nil)
	api.On("ListTagsForResource", ctx, tagsFor("/production/api/DB_URL")).Return(noTags(), nil)
	api.On("ListTagsForResource", ctx, tagsFor("/production/GLOBAL/API_KEY")).Return(noTags(), nil)

	r := NewReconciler(api, zerolog.Nop())
	got, err := r.Resolve(ctx, "production", []string{"api", "GLOBAL"})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "API_KEY", aws.ToString(got[0].Name))
	assert.Equal(t, serviceARN, aws.ToString(got[0].ValueFrom))
	assert.Equal(t, "DB_URL", aws.ToString(got[1].Name))
	api.AssertExpectations(t)
}

func TestFetch_SkipsEntriesTaggedForDeletion(t *testing.T) {
	api := &mockSSM{}
	ctx := context.Background()

	api.On("GetParametersByPath", ctx, pathIs("/staging/web", nil)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{
			param("/staging/web/KEEP", "arn:keep"),
			param("/staging/web/DROP", "arn:drop"),
		},
	}, nil)
	api.On("ListTagsForResource", ctx, tagsFor("/staging/web/KEEP")).Return(&ssm.ListTagsForResourceOutput{
		TagList: []ssmtypes.Tag{{Key: aws.String("delete"), Value: aws.String("0")}},
	}, nil)
	api.On("ListTagsForResource", ctx, tagsFor("/staging/web/DROP")).Return(&ssm.ListTagsForResourceOutput{
		TagList: []ssmtypes.Tag{
			{Key: aws.String("owner"), Value: aws.String("web")},
			{Key: aws.String("delete"), Value: aws.String("1")},
		},
	}, nil)

	r := NewReconciler(api, zerolog.Nop())
	entries, err := r.Fetch(ctx, "staging", []string{"web"})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "KEEP", ValueFrom: "arn:keep"}}, entries)
}

func TestFetch_PaginationErrorIsFatal(t *testing.T) {
	api := &mockSSM{}
	ctx := context.Background()

	api.On("GetParametersByPath", ctx, pathIs("/production/api", nil)).
		Return(nil, errors.New("throttled"))

	r := NewReconciler(api, zerolog.Nop())
	entries, err := r.Fetch(ctx, "production", []string{"api"})
	require.Error(t, err)
	assert.Nil(t, entries)
	assert.Contains(t, err.Error(), "list parameters under /production/api")
	assert.Contains(t, err.Error(), "throttled")
}

func TestFetch_TagLookupErrorIsFatal(t *testing.T) {
	api := &mockSSM{}
	ctx := context.Background()

	api.On("GetParametersByPath", ctx, pathIs("/production/api", nil)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{param("/production/api/API_KEY", serviceARN)},
	}, nil)
	api.On("ListTagsForResource", ctx, tagsFor("/production/api/API_KEY")).
		Return(nil, errors.New("access denied"))

	r := NewReconciler(api, zerolog.Nop())
	_, err := r.Fetch(ctx, "production", []string{"api"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list tags for parameter /production/api/API_KEY")
}

func TestResolve_AmbiguousGroupFails(t *testing.T) {
	api := &mockSSM{}
	ctx := context.Background()

	api.On("GetParametersByPath", ctx, pathIs("/production/api", nil)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{param("/production/api/TOKEN", "arn:a")},
	}, nil)
	api.On("GetParametersByPath", ctx, pathIs("/production/shared", nil)).Return(&ssm.GetParametersByPathOutput{
		Parameters: []ssmtypes.Parameter{param("/production/shared/TOKEN", "arn:b")},
	}, nil)
	api.On("ListTagsForResource", ctx, mock.Anything).Return(noTags(), nil)

	r := NewReconciler(api, zerolog.Nop())
	_, err := r.Resolve(ctx, "production", []string{"api", "shared"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousSecretGroup))
}
