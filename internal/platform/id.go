package platform

import (
	"github.com/google/uuid"
)

// NewRunID returns the identifier correlating logs and metrics of one invocation.
func NewRunID() string {
	return uuid.New().String()
}
