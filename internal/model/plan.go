package model

// Strategy is the rollout mechanism used for one invocation.
type Strategy string

const (
	StrategyInPlace      Strategy = "in-place"
	StrategyDrainRestart Strategy = "drain-restart"
	StrategyBlueGreen    Strategy = "blue-green"
)

// Plan describes a single rollout of a registered revision. It is built per invocation,
// consumed once and never persisted.
type Plan struct {
	Strategy     Strategy
	Revision     string
	Cluster      string
	Service      string
	DesiredCount int32

	// Blue/green only.
	Application      string
	DeploymentGroup  string
	ContainerName    string
	ContainerPort    int
	CapacityProvider string
	PreTrafficHook   string
}

// ScalingPolicy is registered idempotently; registering again overwrites it.
type ScalingPolicy struct {
	ResourceID   string
	Service      string
	MinCapacity  int32
	MaxCapacity  int32
	TargetCPU    int
	TargetMemory int
}
