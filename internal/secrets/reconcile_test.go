package secrets

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	globalARN  = "arn:aws:ssm:us-east-2:123456789012:parameter/production/GLOBAL/API_KEY"
	serviceARN = "arn:aws:ssm:us-east-2:123456789012:parameter/production/api/API_KEY"
)

func names(secrets []ecstypes.Secret) []string {
	out := make([]string, len(secrets))
	for i, s := range secrets {
		out[i] = aws.ToString(s.Name)
	}
	return out
}

func TestReconcile_SingleEntriesUnchanged(t *testing.T) {
	entries := []Entry{
		{Name: "DB_URL", ValueFrom: "arn:aws:ssm:us-east-2:1:parameter/production/api/DB_URL"},
		{Name: "SENTRY_DSN", ValueFrom: "arn:aws:ssm:us-east-2:1:parameter/production/GLOBAL/SENTRY_DSN"},
	}

	got, err := Reconcile(entries)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, e := range entries {
		assert.Equal(t, e.Name, aws.ToString(got[i].Name))
		assert.Equal(t, e.ValueFrom, aws.ToString(got[i].ValueFrom))
	}
}

func TestReconcile_ServiceLevelOverridesGlobal(t *testing.T) {
	for _, entries := range [][]Entry{
		{{Name: "API_KEY", ValueFrom: globalARN}, {Name: "API_KEY", ValueFrom: serviceARN}},
		{{Name: "API_KEY", ValueFrom: serviceARN}, {Name: "API_KEY", ValueFrom: globalARN}},
	} {
		got, err := Reconcile(entries)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "API_KEY", aws.ToString(got[0].Name))
		assert.Equal(t, serviceARN, aws.ToString(got[0].ValueFrom))
	}
}

func TestReconcile_PreservesFirstSeenOrder(t *testing.T) {
	entries := []Entry{
		{Name: "B", ValueFrom: "b"},
		{Name: "A", ValueFrom: "a-GLOBAL"},
		{Name: "C", ValueFrom: "c"},
		{Name: "A", ValueFrom: "a"},
	}

	got, err := Reconcile(entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, names(got))
	assert.Equal(t, "a", aws.ToString(got[1].ValueFrom))
}

func TestReconcile_NamesAreUnique(t *testing.T) {
	entries := []Entry{
		{Name: "X", ValueFrom: "x-GLOBAL"},
		{Name: "Y", ValueFrom: "y"},
		{Name: "X", ValueFrom: "x"},
		{Name: "Z", ValueFrom: "z-GLOBAL"},
	}

	got, err := Reconcile(entries)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, n := range names(got) {
		assert.False(t, seen[n], "duplicate secret %s", n)
		seen[n] = true
	}
}

func TestReconcile_AmbiguousGroups(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"two service-level", []Entry{{Name: "K", ValueFrom: "a"}, {Name: "K", ValueFrom: "b"}}},
		{"two global", []Entry{{Name: "K", ValueFrom: "GLOBAL/a"}, {Name: "K", ValueFrom: "GLOBAL/b"}}},
		{"three entries", []Entry{
			{Name: "K", ValueFrom: "GLOBAL/a"},
			{Name: "K", ValueFrom: "b"},
			{Name: "K", ValueFrom: "c"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(tt.entries)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrAmbiguousSecretGroup))

			var agErr *AmbiguousSecretGroupError
			require.True(t, errors.As(err, &agErr))
			assert.Equal(t, "K", agErr.Name)
			assert.Len(t, agErr.Locators, len(tt.entries))
		})
	}
}

func TestReconcile_Empty(t *testing.T) {
	got, err := Reconcile(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
