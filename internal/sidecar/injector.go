package sidecar

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/model"
)

const (
	// TelemetryContainerName identifies an existing collector; presence by name is enough.
	TelemetryContainerName = "aws-otel-collector"
	logRouterName          = "log_router"

	customConfigFile = "/extra.conf"
)

// State is the shape of a container list before log router injection.
type State int

const (
	// StateEmpty has no containers at all.
	StateEmpty State = iota
	// StateBare has only the primary container.
	StateBare
	// StateManaged already routes container 0 through the log router at index 1.
	StateManaged
	// StateForeign has extra containers but container 0 is not routed; injecting would
	// double up or clobber an unknown container.
	StateForeign
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBare:
		return "bare"
	case StateManaged:
		return "managed"
	case StateForeign:
		return "foreign"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Classify derives the injection state from a container list.
func Classify(containers []ecstypes.ContainerDefinition) State {
	switch {
	case len(containers) == 0:
		return StateEmpty
	case len(containers) == 1:
		return StateBare
	case containers[0].LogConfiguration != nil &&
		containers[0].LogConfiguration.LogDriver == ecstypes.LogDriverAwsfirelens:
		return StateManaged
	}
	return StateForeign
}

var ErrUnsupportedShape = errors.New("unsupported container list shape")

var logRoutingKinds = map[model.ServiceKind]bool{
	model.KindAPI:             true,
	model.KindAlerts:          true,
	model.KindAdminAPI:        true,
	model.KindWeb:             true,
	model.KindLightserver:     true,
	model.KindCrawler:         true,
	model.KindCrawlerRealtime: true,
	model.KindRepeater:        true,
}

var telemetryKinds = map[model.ServiceKind]bool{
	model.KindAPI:             true,
	model.KindAlerts:          true,
	model.KindAdminAPI:        true,
	model.KindWeb:             true,
	model.KindLightserver:     true,
	model.KindCrawler:         true,
	model.KindCrawlerRealtime: true,
	model.KindRepeater:        true,
}

// RoutesLogs reports whether workloads of kind get a log router.
func RoutesLogs(kind model.ServiceKind) bool {
	return logRoutingKinds[kind]
}

// LogRouterOptions selects where the router reads its destination config from.
type LogRouterOptions struct {
	// ConfigLocation is the S3 ARN of the rendered destinations file.
	ConfigLocation string
	// CustomImage replaces the router image; its config is baked in at /extra.conf.
	CustomImage string
}

// Injector adds logging and telemetry sidecars to a container list. It never writes
// through pointers shared with its input: every touched field is replaced.
type Injector struct {
	templates *Templates
	logger    zerolog.Logger
}

// NewInjector creates a new Injector.
func NewInjector(templates *Templates, logger zerolog.Logger) *Injector {
	return &Injector{
		templates: templates,
		logger:    logger.With().Str("component", "sidecar").Logger(),
	}
}

// InjectLogRouter applies the log router transition for the list's current State.
// Workloads outside the allow-list pass through untouched.
func (i *Injector) InjectLogRouter(containers []ecstypes.ContainerDefinition, w model.Workload, opts LogRouterOptions) ([]ecstypes.ContainerDefinition, error) {
	if !logRoutingKinds[w.Kind] {
		i.logger.Info().Str("kind", string(w.Kind)).Msg("log routing not enabled for workload")
		return containers, nil
	}

	state := Classify(containers)
	i.logger.Info().Stringer("state", state).Int("containers", len(containers)).Msg("applying log router")

	switch state {
	case StateBare:
		return i.attachLogRouter(containers, opts)
	case StateManaged:
		return refreshLogRouter(containers, opts), nil
	}
	return nil, fmt.Errorf("%w: log router cannot be injected into %s list of %d containers",
		ErrUnsupportedShape, state, len(containers))
}

func (i *Injector) attachLogRouter(containers []ecstypes.ContainerDefinition, opts LogRouterOptions) ([]ecstypes.ContainerDefinition, error) {
	router, err := i.templates.LogRouter()
	if err != nil {
		return nil, err
	}
	if opts.CustomImage != "" {
		router.Image = aws.String(opts.CustomImage)
	}
	router.FirelensConfiguration = withRouterOptions(router.FirelensConfiguration, opts)

	out := make([]ecstypes.ContainerDefinition, 0, len(containers)+1)
	out = append(out, containers...)
	out[0].LogConfiguration = routedLogConfiguration(out[0].LogConfiguration)
	return append(out, router), nil
}

func refreshLogRouter(containers []ecstypes.ContainerDefinition, opts LogRouterOptions) []ecstypes.ContainerDefinition {
	out := append([]ecstypes.ContainerDefinition(nil), containers...)

	routerName := aws.ToString(out[1].Name)
	if routerName == "" {
		routerName = logRouterName
	}
	out[0].DependsOn = dependOnRouterStart(out[0].DependsOn, routerName)
	out[0].LogConfiguration = routedLogConfiguration(out[0].LogConfiguration)

	if opts.CustomImage != "" {
		out[1].Image = aws.String(opts.CustomImage)
	}
	out[1].FirelensConfiguration = withRouterOptions(out[1].FirelensConfiguration, opts)
	return out
}

// dependOnRouterStart returns deps with a START dependency on router, keeping every
// other entry in place.
func dependOnRouterStart(deps []ecstypes.ContainerDependency, router string) []ecstypes.ContainerDependency {
	out := make([]ecstypes.ContainerDependency, 0, len(deps)+1)
	found := false
	for _, d := range deps {
		if aws.ToString(d.ContainerName) == router {
			if found {
				continue
			}
			d.Condition = ecstypes.ContainerConditionStart
			found = true
		}
		out = append(out, d)
	}
	if !found {
		out = append(out, ecstypes.ContainerDependency{
			ContainerName: aws.String(router),
			Condition:     ecstypes.ContainerConditionStart,
		})
	}
	return out
}

// routedLogConfiguration points the primary container at the router with empty inline
// options; secret options are kept.
func routedLogConfiguration(prev *ecstypes.LogConfiguration) *ecstypes.LogConfiguration {
	lc := &ecstypes.LogConfiguration{
		LogDriver: ecstypes.LogDriverAwsfirelens,
		Options:   map[string]string{},
	}
	if prev != nil {
		lc.SecretOptions = prev.SecretOptions
	}
	return lc
}

func withRouterOptions(prev *ecstypes.FirelensConfiguration, opts LogRouterOptions) *ecstypes.FirelensConfiguration {
	fc := &ecstypes.FirelensConfiguration{Type: ecstypes.FirelensConfigurationTypeFluentbit}
	if prev != nil {
		fc.Type = prev.Type
	}

	if opts.CustomImage != "" {
		fc.Options = map[string]string{
			"config-file-type":  "file",
			"config-file-value": customConfigFile,
		}
	} else {
		fc.Options = map[string]string{
			"config-file-type":  "s3",
			"config-file-value": opts.ConfigLocation,
		}
	}
	return fc
}

// InjectTelemetry appends the collector unless a container with its name already exists.
// An existing collector is left as is, even when its definition is stale.
func (i *Injector) InjectTelemetry(containers []ecstypes.ContainerDefinition, w model.Workload) ([]ecstypes.ContainerDefinition, error) {
	if !telemetryKinds[w.Kind] {
		i.logger.Info().Str("kind", string(w.Kind)).Msg("telemetry not enabled for workload")
		return containers, nil
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("%w: telemetry needs a primary container", ErrUnsupportedShape)
	}

	for _, c := range containers {
		if aws.ToString(c.Name) == TelemetryContainerName {
			i.logger.Info().Msg("found telemetry collector, skipping")
			return containers, nil
		}
	}

	collector, err := i.templates.Telemetry()
	if err != nil {
		return nil, err
	}
	out := make([]ecstypes.ContainerDefinition, 0, len(containers)+1)
	out = append(out, containers...)
	return append(out, collector), nil
}
