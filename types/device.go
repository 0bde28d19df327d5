package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Device is where post-processed images end up: the host or a specific GPU.
type Device struct {
	Type  ResourceType
	Index int
}

var DeviceCPU = Device{Type: ResourceTypeBufferCPU}

func DeviceCUDA(index int) Device {
	return Device{Type: ResourceTypeBufferCUDA, Index: index}
}

func (d Device) String() string {
	if !d.Type.IsDevice() {
		return d.Type.String()
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

// Pipeline returns the codec pipeline that processes directly into the device memory.
func (d Device) Pipeline() (Pipeline, bool) {
	switch d.Type {
	case ResourceTypeBufferCPU:
		return PipelineCPU, true
	case ResourceTypeBufferCUDA:
		return PipelineCUDA, true
	case ResourceTypeBufferMetal:
		return PipelineMetal, true
	case ResourceTypeBufferOpenCL:
		return PipelineOpenCL, true
	default:
		return 0, false
	}
}

func (d *Device) UnmarshalText(b []byte) error {
	v, err := ParseDevice(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Device) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDevice accepts "cpu", "cuda" and "cuda:N" style strings.
func ParseDevice(s string) (Device, error) {
	typeStr, indexStr, hasIndex := strings.Cut(s, ":")
	t, err := ParseResourceType(typeStr)
	if err != nil {
		return Device{}, fmt.Errorf("unable to parse device '%s': %w", s, err)
	}
	if t == ResourceTypeNone {
		return Device{}, fmt.Errorf("unable to parse device '%s': no memory kind", s)
	}
	d := Device{Type: t}
	if !hasIndex {
		return d, nil
	}
	if !t.IsDevice() {
		return Device{}, fmt.Errorf("unable to parse device '%s': %s does not take an index", s, t)
	}
	d.Index, err = strconv.Atoi(indexStr)
	if err != nil || d.Index < 0 {
		return Device{}, fmt.Errorf("unable to parse device index '%s'", indexStr)
	}
	return d, nil
}
