package sidecar

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/ecsrollout/internal/model"
)

const s3Location = "arn:aws:s3:::production-traderlion-logging-configs/app/logDestinations.conf"

var apiWorkload = model.Workload{Kind: model.KindAPI}

func newTestInjector(t *testing.T) *Injector {
	t.Helper()
	templates, err := LoadTemplates("")
	require.NoError(t, err)
	return NewInjector(templates, zerolog.Nop())
}

func app() ecstypes.ContainerDefinition {
	return ecstypes.ContainerDefinition{
		Name:  aws.String("app"),
		Image: aws.String("old:1"),
		LogConfiguration: &ecstypes.LogConfiguration{
			LogDriver: ecstypes.LogDriverAwslogs,
			Options:   map[string]string{"awslogs-group": "/ecs/app"},
		},
	}
}

func TestClassify(t *testing.T) {
	routed := app()
	routed.LogConfiguration = &ecstypes.LogConfiguration{LogDriver: ecstypes.LogDriverAwsfirelens}
	other := ecstypes.ContainerDefinition{Name: aws.String("other")}

	assert.Equal(t, StateEmpty, Classify(nil))
	assert.Equal(t, StateBare, Classify([]ecstypes.ContainerDefinition{app()}))
	assert.Equal(t, StateManaged, Classify([]ecstypes.ContainerDefinition{routed, other}))
	assert.Equal(t, StateForeign, Classify([]ecstypes.ContainerDefinition{app(), other}))

	noLogConfig := ecstypes.ContainerDefinition{Name: aws.String("app")}
	assert.Equal(t, StateForeign, Classify([]ecstypes.ContainerDefinition{noLogConfig, other}))
}

func TestInjectLogRouter_BareAppendsRouter(t *testing.T) {
	inj := newTestInjector(t)
	in := []ecstypes.ContainerDefinition{app()}

	out, err := inj.InjectLogRouter(in, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "app", aws.ToString(out[0].Name))
	assert.Equal(t, ecstypes.LogDriverAwsfirelens, out[0].LogConfiguration.LogDriver)
	assert.Empty(t, out[0].LogConfiguration.Options)

	router := out[1]
	assert.Equal(t, "log_router", aws.ToString(router.Name))
	require.NotNil(t, router.FirelensConfiguration)
	assert.Equal(t, map[string]string{
		"config-file-type":  "s3",
		"config-file-value": s3Location,
	}, router.FirelensConfiguration.Options)

	// The previous revision's container is untouched.
	assert.Equal(t, ecstypes.LogDriverAwslogs, in[0].LogConfiguration.LogDriver)
	assert.Equal(t, "/ecs/app", in[0].LogConfiguration.Options["awslogs-group"])
}

func TestInjectLogRouter_BareWithoutLogConfiguration(t *testing.T) {
	inj := newTestInjector(t)
	in := []ecstypes.ContainerDefinition{{Name: aws.String("app"), Image: aws.String("old:1")}}

	out, err := inj.InjectLogRouter(in, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].LogConfiguration)
	assert.Equal(t, ecstypes.LogDriverAwsfirelens, out[0].LogConfiguration.LogDriver)
	assert.Nil(t, in[0].LogConfiguration)
}

func TestInjectLogRouter_CustomImage(t *testing.T) {
	inj := newTestInjector(t)

	out, err := inj.InjectLogRouter([]ecstypes.ContainerDefinition{app()}, apiWorkload, LogRouterOptions{
		ConfigLocation: s3Location,
		CustomImage:    "registry.example.com/fluent-bit:custom",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "registry.example.com/fluent-bit:custom", aws.ToString(out[1].Image))
	assert.Equal(t, map[string]string{
		"config-file-type":  "file",
		"config-file-value": "/extra.conf",
	}, out[1].FirelensConfiguration.Options)
}

func TestInjectLogRouter_ManagedRefreshesInPlace(t *testing.T) {
	inj := newTestInjector(t)

	first, err := inj.InjectLogRouter([]ecstypes.ContainerDefinition{app()}, apiWorkload, LogRouterOptions{ConfigLocation: "arn:old"})
	require.NoError(t, err)

	second, err := inj.InjectLogRouter(first, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)

	require.Len(t, second, 2)
	assert.Equal(t, s3Location, second[1].FirelensConfiguration.Options["config-file-value"])
	assert.Equal(t, "arn:old", first[1].FirelensConfiguration.Options["config-file-value"])
	assert.Equal(t, aws.ToString(first[1].Image), aws.ToString(second[1].Image))

	require.Len(t, second[0].DependsOn, 1)
	assert.Equal(t, "log_router", aws.ToString(second[0].DependsOn[0].ContainerName))
	assert.Equal(t, ecstypes.ContainerConditionStart, second[0].DependsOn[0].Condition)
	assert.Empty(t, first[0].DependsOn)
}

func TestInjectLogRouter_ManagedKeepsOtherDependencies(t *testing.T) {
	inj := newTestInjector(t)

	first, err := inj.InjectLogRouter([]ecstypes.ContainerDefinition{app()}, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)
	first[0].DependsOn = []ecstypes.ContainerDependency{
		{ContainerName: aws.String("migrate"), Condition: ecstypes.ContainerConditionSuccess},
		{ContainerName: aws.String("log_router"), Condition: ecstypes.ContainerConditionHealthy},
	}

	second, err := inj.InjectLogRouter(first, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)

	require.Len(t, second[0].DependsOn, 2)
	assert.Equal(t, "migrate", aws.ToString(second[0].DependsOn[0].ContainerName))
	assert.Equal(t, ecstypes.ContainerConditionSuccess, second[0].DependsOn[0].Condition)
	assert.Equal(t, "log_router", aws.ToString(second[0].DependsOn[1].ContainerName))
	assert.Equal(t, ecstypes.ContainerConditionStart, second[0].DependsOn[1].Condition)
	assert.Equal(t, ecstypes.ContainerConditionHealthy, first[0].DependsOn[1].Condition)

	onlyMigrate := append([]ecstypes.ContainerDefinition(nil), first...)
	onlyMigrate[0].DependsOn = first[0].DependsOn[:1]
	third, err := inj.InjectLogRouter(onlyMigrate, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)
	require.Len(t, third[0].DependsOn, 2)
	assert.Equal(t, "migrate", aws.ToString(third[0].DependsOn[0].ContainerName))
	assert.Equal(t, "log_router", aws.ToString(third[0].DependsOn[1].ContainerName))
}

func TestInjectLogRouter_ManagedWithTelemetryKeepsOrder(t *testing.T) {
	inj := newTestInjector(t)

	out, err := inj.InjectLogRouter([]ecstypes.ContainerDefinition{app()}, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.NoError(t, err)
	out, err = inj.InjectTelemetry(out, apiWorkload)
	require.NoError(t, err)

	again, err := inj.InjectLogRouter(out, apiWorkload, LogRouterOptions{ConfigLocation: s3Location, CustomImage: "fb:2"})
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Equal(t, "app", aws.ToString(again[0].Name))
	assert.Equal(t, "fb:2", aws.ToString(again[1].Image))
	assert.Equal(t, TelemetryContainerName, aws.ToString(again[2].Name))
}

func TestInjectLogRouter_RejectsUndefinedShapes(t *testing.T) {
	inj := newTestInjector(t)

	_, err := inj.InjectLogRouter(nil, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedShape))

	foreign := []ecstypes.ContainerDefinition{app(), {Name: aws.String("envoy")}}
	_, err = inj.InjectLogRouter(foreign, apiWorkload, LogRouterOptions{ConfigLocation: s3Location})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedShape))
	assert.Contains(t, err.Error(), "foreign")
}

func TestInjectLogRouter_OutsideAllowList(t *testing.T) {
	inj := newTestInjector(t)
	in := []ecstypes.ContainerDefinition{app(), {Name: aws.String("envoy")}}

	out, err := inj.InjectLogRouter(in, model.Workload{Kind: model.KindOther}, LogRouterOptions{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInjectTelemetry_AppendsOnce(t *testing.T) {
	inj := newTestInjector(t)

	out, err := inj.InjectTelemetry([]ecstypes.ContainerDefinition{app()}, apiWorkload)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, TelemetryContainerName, aws.ToString(out[1].Name))

	again, err := inj.InjectTelemetry(out, apiWorkload)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestInjectTelemetry_ExistingCollectorAnywhere(t *testing.T) {
	inj := newTestInjector(t)
	stale := ecstypes.ContainerDefinition{Name: aws.String(TelemetryContainerName), Image: aws.String("collector:0.1")}
	in := []ecstypes.ContainerDefinition{app(), stale, {Name: aws.String("log_router")}}

	out, err := inj.InjectTelemetry(in, apiWorkload)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "collector:0.1", aws.ToString(out[1].Image))
}

func TestInjectTelemetry_OutsideAllowList(t *testing.T) {
	inj := newTestInjector(t)
	in := []ecstypes.ContainerDefinition{app()}

	out, err := inj.InjectTelemetry(in, model.Workload{Kind: model.KindOther})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestInjectTelemetry_EmptyList(t *testing.T) {
	inj := newTestInjector(t)
	_, err := inj.InjectTelemetry(nil, apiWorkload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedShape))
}
