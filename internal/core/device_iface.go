package core

import (
	"context"

	"github.com/dkeye/meshcall/internal/media"
)

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

//go:generate mockgen -source=device_iface.go -destination=mocks/mock_device_iface.go -package=mocks

// Devices is the platform capture layer.
type Devices interface {
	// RequestCapture blocks until access is granted or refused. The returned
	// stream holds live tracks of the requested kinds.
	RequestCapture(ctx context.Context, kinds media.Kinds) (*media.Stream, error)
	Permission(ctx context.Context, kind media.Kind) (PermissionState, error)
}
