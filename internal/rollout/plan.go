package rollout

import (
	"fmt"
	"strings"

	"github.com/edvin/ecsrollout/internal/model"
)

// hookedService is the only service validated by a pre-traffic hook.
const hookedService = "lightserver"

// SelectStrategy picks exactly one rollout mechanism. CodeDeploy identifiers win over the
// workload classification.
func SelectStrategy(p model.Params, w model.Workload) model.Strategy {
	switch {
	case p.BlueGreen():
		return model.StrategyBlueGreen
	case w.Stateful:
		return model.StrategyDrainRestart
	}
	return model.StrategyInPlace
}

// NewPlan builds the rollout plan of a freshly registered revision.
func NewPlan(p model.Params, w model.Workload, revision string) model.Plan {
	plan := model.Plan{
		Strategy:     SelectStrategy(p, w),
		Revision:     revision,
		Cluster:      p.Cluster,
		Service:      p.Service,
		DesiredCount: p.DesiredCount,
	}
	if plan.Strategy == model.StrategyBlueGreen {
		plan.Application = p.DeploymentApp
		plan.DeploymentGroup = p.DeploymentGroup
		plan.ContainerName = p.ContainerName
		plan.ContainerPort = p.Port
		plan.CapacityProvider = p.CapacityProvider
		if p.Service == hookedService {
			plan.PreTrafficHook = fmt.Sprintf("health-check-%s-%s", strings.ToLower(p.Environment), p.Service)
		}
	}
	return plan
}
