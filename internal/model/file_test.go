package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParamsFile(t *testing.T) {
	path := writeFile(t, `
cluster: crawler-realtime
service: crawler-realtime-pre-market
service_paths: [crawler, GLOBAL]
fargate: true
autoscaling:
  enabled: true
  target_cpu: 70
`)

	p := DefaultParams()
	p.Image = "registry.example.com/crawler:9"
	require.NoError(t, LoadParamsFile(path, &p))

	assert.Equal(t, "crawler-realtime", p.Cluster)
	assert.Equal(t, []string{"crawler", "GLOBAL"}, p.ServicePaths)
	assert.True(t, p.Fargate)
	assert.True(t, p.Autoscaling.Enabled)
	assert.Equal(t, 70, p.Autoscaling.TargetCPU)
	// Untouched by the file.
	assert.Equal(t, int32(1), p.DesiredCount)
	assert.Equal(t, int32(5), p.Autoscaling.MaxCapacity)
	assert.Equal(t, "registry.example.com/crawler:9", p.Image)
}

func TestLoadParamsFile_Empty(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, LoadParamsFile(writeFile(t, ""), &p))
	assert.Equal(t, DefaultParams(), p)
}

func TestLoadParamsFile_UnknownKey(t *testing.T) {
	p := DefaultParams()
	err := LoadParamsFile(writeFile(t, "clutser: typo\n"), &p)
	require.Error(t, err)
}

func TestLoadParamsFile_Missing(t *testing.T) {
	p := DefaultParams()
	err := LoadParamsFile(filepath.Join(t.TempDir(), "nope.yaml"), &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read params file")
}
