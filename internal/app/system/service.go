package system

import (
	"context"

	"github.com/aisaas/backend/internal/app/core/service"
)

// Service is a component the Manager starts and stops. Start must not block;
// long-running work belongs in goroutines that Stop winds down.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Describer is implemented by services that advertise a descriptor.
type Describer interface {
	Descriptor() service.Descriptor
}
