// resource_type.go defines the ResourceType enum (the memory kind a resource lives in).

// Package types provides common types used throughout the rawpipeline project.
package types

import (
	"fmt"
	"strings"
)

type ResourceType uint32

const (
	// the constants are the FourCC codes of the vendor SDK:
	ResourceTypeNone         = ResourceType(0)
	ResourceTypeBufferCPU    = ResourceType(0x63707562) // 'cpub'
	ResourceTypeBufferMetal  = ResourceType(0x6d657462) // 'metb'
	ResourceTypeBufferCUDA   = ResourceType(0x63756462) // 'cudb'
	ResourceTypeBufferOpenCL = ResourceType(0x6f636c62) // 'oclb'
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeNone:
		return "none"
	case ResourceTypeBufferCPU:
		return "cpu"
	case ResourceTypeBufferMetal:
		return "metal"
	case ResourceTypeBufferCUDA:
		return "cuda"
	case ResourceTypeBufferOpenCL:
		return "opencl"
	default:
		return fmt.Sprintf("<unexpected_%s>", fourCCString(uint32(t)))
	}
}

// IsDevice returns true if the memory is not directly addressable by the CPU.
func (t ResourceType) IsDevice() bool {
	switch t {
	case ResourceTypeBufferMetal, ResourceTypeBufferCUDA, ResourceTypeBufferOpenCL:
		return true
	default:
		return false
	}
}

func (t *ResourceType) UnmarshalText(b []byte) error {
	v, err := ParseResourceType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t ResourceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func ParseResourceType(s string) (ResourceType, error) {
	for _, t := range []ResourceType{
		ResourceTypeNone,
		ResourceTypeBufferCPU,
		ResourceTypeBufferMetal,
		ResourceTypeBufferCUDA,
		ResourceTypeBufferOpenCL,
	} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return ResourceTypeNone, fmt.Errorf("unknown resource type '%s'", s)
}
