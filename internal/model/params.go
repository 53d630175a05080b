package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Params holds everything one build-and-deploy invocation needs.
type Params struct {
	Cluster          string   `yaml:"cluster" validate:"required"`
	Service          string   `yaml:"service" validate:"required"`
	Family           string   `yaml:"family" validate:"required"`
	Port             int      `yaml:"port" validate:"required,min=1,max=65535"`
	Memory           string   `yaml:"memory" validate:"required,numeric"`
	CPU              string   `yaml:"cpu" validate:"omitempty,numeric"`
	CapacityProvider string   `yaml:"capacity_provider" validate:"required"`
	ContainerName    string   `yaml:"container_name" validate:"required"`
	Environment      string   `yaml:"environment" validate:"required"`
	ServicePaths     []string `yaml:"service_paths" validate:"required,min=1,dive,required"`
	Image            string   `yaml:"image" validate:"required"`

	// ServiceKind overrides the classification derived from Service.
	ServiceKind ServiceKind `yaml:"service_kind" validate:"omitempty,oneof=api alerts adminapi web lightserver crawler crawler-realtime repeater other"`

	Fargate        bool   `yaml:"fargate"`
	MarketType     string `yaml:"market_type"`
	FluentImage    string `yaml:"fluent_image"`
	DesiredCount   int32  `yaml:"desired_count" validate:"min=0"`
	DisableSecrets bool   `yaml:"disable_secrets"`
	OnlyBatch      bool   `yaml:"only_batch"`
	Verbose        bool   `yaml:"verbose"`

	DeploymentApp   string `yaml:"deployment_app" validate:"required_with=DeploymentGroup"`
	DeploymentGroup string `yaml:"deployment_group" validate:"required_with=DeploymentApp"`

	Autoscaling AutoscalingParams `yaml:"autoscaling"`
}

// AutoscalingParams configures the optional scalable target and tracking policies.
// A target of 0 disables the matching policy.
type AutoscalingParams struct {
	Enabled      bool  `yaml:"enabled"`
	MinCapacity  int32 `yaml:"min_capacity" validate:"min=0"`
	MaxCapacity  int32 `yaml:"max_capacity" validate:"gtefield=MinCapacity"`
	TargetCPU    int   `yaml:"target_cpu" validate:"min=0,max=100"`
	TargetMemory int   `yaml:"target_memory" validate:"min=0,max=100"`
}

// DefaultParams returns the parameter defaults applied before flags and files.
func DefaultParams() Params {
	return Params{
		DesiredCount: 1,
		Autoscaling: AutoscalingParams{
			MinCapacity: 1,
			MaxCapacity: 5,
		},
	}
}

// ErrInvalidParams marks input validation failures. Nothing has been called remotely when
// it is returned.
var ErrInvalidParams = errors.New("invalid deploy parameters")

// ValidationError lists every offending parameter.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidParams, strings.Join(e.Fields, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidParams
}

// Validate checks required parameters and cross-field rules.
func (p *Params) Validate() error {
	var fields []string

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate params: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	if !p.OnlyBatch && p.DesiredCount < 1 && ClassifyWorkload(p.Cluster, p.Service, p.ServiceKind).Stateful {
		fields = append(fields, "Params.DesiredCount must be at least 1 for a drain-restart workload")
	}

	if p.OnlyBatch {
		if _, ok := VCPUForUnits(p.CPU); !ok {
			fields = append(fields, fmt.Sprintf("Params.CPU %q is not a batch CPU size", p.CPU))
		}
		if p.kind() != KindCrawler {
			fields = append(fields, fmt.Sprintf("Params.Service %q has no batch job definition", p.Service))
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// BlueGreen reports whether CodeDeploy identifiers were supplied.
func (p *Params) BlueGreen() bool {
	return p.DeploymentApp != "" && p.DeploymentGroup != ""
}

func (p *Params) kind() ServiceKind {
	if p.ServiceKind != "" {
		return p.ServiceKind
	}
	return ClassifyService(p.Service)
}

// SkipsSidecars reports whether the environment runs without logging and telemetry sidecars.
func (p *Params) SkipsSidecars() bool {
	return strings.EqualFold(p.Environment, "dev")
}

var cpuUnitsToVCPU = map[string]string{
	"256":   "0.25",
	"512":   "0.5",
	"1024":  "1",
	"2048":  "2",
	"4096":  "4",
	"8192":  "8",
	"16384": "16",
}

// VCPUForUnits converts ECS CPU units to the vCPU value AWS Batch expects.
func VCPUForUnits(units string) (string, bool) {
	v, ok := cpuUnitsToVCPU[units]
	return v, ok
}
