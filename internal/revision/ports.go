package revision

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// Auxiliary ports are exposed for out-of-band use (debuggers, realtime sockets).
const (
	AuxPortStart = 40000
	AuxPortCount = 100
)

// PortMappings builds the primary mapping followed by the auxiliary block. Only the
// primary port of serverless tasks binds host port == container port; every other host
// port is left unset for the platform to assign.
func PortMappings(port int, serverless bool) []ecstypes.PortMapping {
	mappings := make([]ecstypes.PortMapping, 0, AuxPortCount+1)

	primary := ecstypes.PortMapping{
		ContainerPort: aws.Int32(int32(port)),
		HostPort:      aws.Int32(0),
		Protocol:      ecstypes.TransportProtocolTcp,
	}
	if serverless {
		primary.HostPort = aws.Int32(int32(port))
	}
	mappings = append(mappings, primary)

	for p := AuxPortStart; p < AuxPortStart+AuxPortCount; p++ {
		mappings = append(mappings, ecstypes.PortMapping{
			ContainerPort: aws.Int32(int32(p)),
			Protocol:      ecstypes.TransportProtocolTcp,
		})
	}
	return mappings
}
