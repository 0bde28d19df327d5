// manager.go defines the Manager interface for allocating codec resources.

// Package resource provides resource handles and the managers that allocate them.
package resource

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/types"
)

// Manager is the resource allocation interface exposed by the codec engine.
type Manager interface {
	CreateResource(
		ctx context.Context,
		devCtx types.DeviceContext,
		queue types.CommandQueue,
		sizeBytes uint64,
		resourceType types.ResourceType,
		usage types.ResourceUsage,
	) (Resource, error)

	ReleaseResource(
		ctx context.Context,
		devCtx types.DeviceContext,
		queue types.CommandQueue,
		res Resource,
	) error

	CopyResource(
		ctx context.Context,
		devCtx types.DeviceContext,
		queue types.CommandQueue,
		src Resource,
		dst Resource,
		sizeBytes uint64,
	) error
}

// Mapper is implemented by managers that can expose the memory of a resource to Go code.
type Mapper interface {
	Map(res Resource) ([]byte, error)
}

// Map returns the memory backing the resource if the manager supports it.
func Map(mgr Manager, res Resource) ([]byte, error) {
	m, ok := mgr.(Mapper)
	if !ok {
		return nil, types.ErrNotImplemented{Err: errUnmappable{Manager: mgr}}
	}
	return m.Map(res)
}
