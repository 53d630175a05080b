package sidecar

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

//go:embed templates/*.json
var embedded embed.FS

const (
	logRouterFile = "log_router.json"
	telemetryFile = "otel_collector.json"
)

var ErrTemplate = errors.New("sidecar template")

// Templates holds the static container definitions of the sidecars. The raw documents are
// decoded on every use so callers always receive an independent copy.
type Templates struct {
	logRouter []byte
	telemetry []byte
}

// LoadTemplates reads the sidecar templates from dir, or the embedded defaults when dir is
// empty. Both templates are decoded once up front so a malformed file fails before any
// remote call.
func LoadTemplates(dir string) (*Templates, error) {
	read := func(name string) ([]byte, error) {
		if dir == "" {
			return embedded.ReadFile("templates/" + name)
		}
		return os.ReadFile(filepath.Join(dir, name))
	}

	t := &Templates{}
	var err error
	if t.logRouter, err = read(logRouterFile); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrTemplate, logRouterFile, err)
	}
	if t.telemetry, err = read(telemetryFile); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrTemplate, telemetryFile, err)
	}

	if _, err := t.LogRouter(); err != nil {
		return nil, err
	}
	if _, err := t.Telemetry(); err != nil {
		return nil, err
	}
	return t, nil
}

// LogRouter returns a fresh copy of the log router container.
func (t *Templates) LogRouter() (ecstypes.ContainerDefinition, error) {
	return decode(logRouterFile, t.logRouter)
}

// Telemetry returns a fresh copy of the telemetry collector container.
func (t *Templates) Telemetry() (ecstypes.ContainerDefinition, error) {
	return decode(telemetryFile, t.telemetry)
}

func decode(name string, data []byte) (ecstypes.ContainerDefinition, error) {
	var c ecstypes.ContainerDefinition
	if err := json.Unmarshal(data, &c); err != nil {
		return ecstypes.ContainerDefinition{}, fmt.Errorf("%w %s: %w", ErrTemplate, name, err)
	}
	if aws.ToString(c.Name) == "" || aws.ToString(c.Image) == "" {
		return ecstypes.ContainerDefinition{}, fmt.Errorf("%w %s: name and image are required", ErrTemplate, name)
	}
	return c, nil
}
