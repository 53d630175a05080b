package fluentbit

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/edvin/ecsrollout/internal/model"
)

// LogPath is where application containers write the files the router tails.
const LogPath = "/var/www/app/tmp/traderlionApp/"

// Settings are the values substituted into the destinations file.
type Settings struct {
	ESHost        string
	ContainerName string
	IndexName     string
	Region        string
}

var destinations = template.Must(template.New("destinations").Parse(`[INPUT]
    name    tail
    Tag     {{.ContainerName}}-firelens*
    Mem_Buf_Limit         50MB
    Buffer_Chunk_Size     1M
    Buffer_Max_Size       5M
    Refresh_Interval      5
    Rotate_Wait           30
    DB                    /var/log/flb-tail.db
    Skip_Long_Lines       Off
    path    {{.LogPath}}*.log
[SERVICE]
    Log_Level info
[OUTPUT]
    Name null
    Match firelens-healthcheck
[OUTPUT]
    Name opensearch
    Match {{.ContainerName}}-firelens*
    Aws_Auth On
    Aws_Region {{.Region}}
    Host {{.ESHost}}
    Index {{.IndexName}}
    Port 443
    Suppress_Type_Name On
    retry_limit 2
    Generate_ID On
    tls On
[OUTPUT]
    Name                cloudwatch
    Match               {{.ContainerName}}-firelens*
    region              {{.Region}}
    log_group_name      {{.ContainerName}}
    log_stream_name     {{.ContainerName}}
    log_retention_days  3
    log_key             log
    auto_retry_requests On
    workers             1
    Retry_Limit         20
    net.keepalive       off
    auto_create_group   true`))

// Render produces the fluent-bit destinations file for one container.
func Render(s Settings) (string, error) {
	if s.ContainerName == "" {
		return "", fmt.Errorf("render fluent-bit config: container name is required")
	}

	var buf bytes.Buffer
	err := destinations.Execute(&buf, struct {
		Settings
		LogPath string
	}{s, LogPath})
	if err != nil {
		return "", fmt.Errorf("render fluent-bit config: %w", err)
	}
	return buf.String(), nil
}

// IndexName picks the OpenSearch index for a workload. Lightservers run in several
// regions and get a regional index; all realtime crawlers share one index per environment.
func IndexName(kind model.ServiceKind, containerName, environment, region string) string {
	switch kind {
	case model.KindLightserver:
		return fmt.Sprintf("%s-%s", containerName, region)
	case model.KindCrawlerRealtime:
		return fmt.Sprintf("crawler-realtime-%s", strings.ToLower(environment))
	}
	return containerName
}

// BucketName is the per-environment bucket holding destinations files.
func BucketName(environment, suffix string) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(environment), suffix)
}

// ObjectKey is the destinations file key for a container.
func ObjectKey(containerName string) string {
	return containerName + "/logDestinations.conf"
}
