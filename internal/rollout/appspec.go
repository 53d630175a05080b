package rollout

import (
	"encoding/json"
	"fmt"

	"github.com/edvin/ecsrollout/internal/model"
)

type appSpec struct {
	Version   json.Number         `json:"version"`
	Resources []appSpecResource   `json:"Resources"`
	Hooks     []map[string]string `json:"Hooks,omitempty"`
}

type appSpecResource struct {
	TargetService targetService `json:"TargetService"`
}

type targetService struct {
	Type       string           `json:"Type"`
	Properties targetProperties `json:"Properties"`
}

type targetProperties struct {
	TaskDefinition           string             `json:"TaskDefinition"`
	LoadBalancerInfo         loadBalancerInfo   `json:"LoadBalancerInfo"`
	CapacityProviderStrategy []capacityProvider `json:"CapacityProviderStrategy"`
}

type loadBalancerInfo struct {
	ContainerName string `json:"ContainerName"`
	ContainerPort int    `json:"ContainerPort"`
}

type capacityProvider struct {
	CapacityProvider string `json:"CapacityProvider"`
	Base             int    `json:"Base"`
	Weight           int    `json:"Weight"`
}

// AppSpec renders the CodeDeploy ECS AppSpec document of a blue/green plan.
func AppSpec(plan model.Plan) (string, error) {
	spec := appSpec{
		Version: json.Number("0.0"),
		Resources: []appSpecResource{{
			TargetService: targetService{
				Type: "AWS::ECS::Service",
				Properties: targetProperties{
					TaskDefinition: plan.Revision,
					LoadBalancerInfo: loadBalancerInfo{
						ContainerName: plan.ContainerName,
						ContainerPort: plan.ContainerPort,
					},
					CapacityProviderStrategy: []capacityProvider{{
						CapacityProvider: plan.CapacityProvider,
						Base:             0,
						Weight:           1,
					}},
				},
			},
		}},
	}
	if plan.PreTrafficHook != "" {
		spec.Hooks = []map[string]string{{"BeforeAllowTraffic": plan.PreTrafficHook}}
	}

	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("marshal appspec: %w", err)
	}
	return string(data), nil
}
