// resource.go defines Resource, an opaque reference to a CPU or device memory buffer.

package resource

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/rawpipeline/types"
)

type Resource struct {
	Handle    uintptr
	Type      types.ResourceType
	SizeBytes uint64
}

// None returns the "no resource" value, e.g. when a clip has no post-3D-LUT.
func None() Resource {
	return Resource{Type: types.ResourceTypeNone}
}

func (r Resource) IsNone() bool {
	return r.Handle == 0
}

// SameMemory returns true if both references point to the same underlying buffer.
func (r Resource) SameMemory(other Resource) bool {
	return !r.IsNone() && r.Handle == other.Handle && r.Type == other.Type
}

func (r Resource) String() string {
	if r.IsNone() {
		return "Resource(none)"
	}
	return fmt.Sprintf("Resource(%s:0x%X, %s)", r.Type, r.Handle, humanize.IBytes(r.SizeBytes))
}
