// host_manager.go implements a Manager that serves resources from the Go heap.

package resource

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
	"github.com/xaionaro-go/xsync"
)

type HostManagerStats struct {
	Live        int
	LiveBytes   uint64
	Allocations uint64
	Releases    uint64
	Copies      uint64
}

type hostBuffer struct {
	Data  []byte
	Type  types.ResourceType
	Usage types.ResourceUsage
}

type HostManager struct {
	locker  xsync.Mutex
	config  hostManagerConfig
	buffers map[uintptr]hostBuffer
	stats   HostManagerStats
}

var (
	_ Manager = (*HostManager)(nil)
	_ Mapper  = (*HostManager)(nil)
)

func NewHostManager(opts ...HostManagerOption) *HostManager {
	return &HostManager{
		config:  HostManagerOptions(opts).config(),
		buffers: map[uintptr]hostBuffer{},
	}
}

func (m *HostManager) String() string {
	return fmt.Sprintf("HostManager(%v)", m.config.ResourceTypes)
}

func (m *HostManager) isSupported(t types.ResourceType) bool {
	for _, supported := range m.config.ResourceTypes {
		if t == supported {
			return true
		}
	}
	return false
}

func (m *HostManager) CreateResource(
	ctx context.Context,
	_ types.DeviceContext,
	_ types.CommandQueue,
	sizeBytes uint64,
	resourceType types.ResourceType,
	usage types.ResourceUsage,
) (_ret Resource, _err error) {
	logger.Tracef(ctx, "CreateResource(ctx, %d, %s, %s)", sizeBytes, resourceType, usage)
	defer func() { logger.Tracef(ctx, "/CreateResource(ctx, %d, %s, %s): %s %v", sizeBytes, resourceType, usage, _ret, _err) }()
	fail := func(err error) (Resource, error) {
		return Resource{}, types.ErrResource{
			Op:        "create",
			Type:      resourceType,
			SizeBytes: sizeBytes,
			Err:       err,
		}
	}
	if sizeBytes == 0 {
		return fail(ErrZeroSize)
	}
	if !m.isSupported(resourceType) {
		return fail(ErrUnsupportedType)
	}
	m.locker.Do(ctx, func() {
		if m.config.AllocationLimit > 0 && m.stats.LiveBytes+sizeBytes > m.config.AllocationLimit {
			_ret, _err = fail(fmt.Errorf("%w: %s live + %s requested > %s", ErrLimitExceeded,
				humanize.IBytes(m.stats.LiveBytes), humanize.IBytes(sizeBytes), humanize.IBytes(m.config.AllocationLimit)))
			return
		}
		data := make([]byte, sizeBytes)
		handle := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
		m.buffers[handle] = hostBuffer{Data: data, Type: resourceType, Usage: usage}
		m.stats.Live++
		m.stats.LiveBytes += sizeBytes
		m.stats.Allocations++
		_ret = Resource{Handle: handle, Type: resourceType, SizeBytes: sizeBytes}
	})
	return
}

func (m *HostManager) ReleaseResource(
	ctx context.Context,
	_ types.DeviceContext,
	_ types.CommandQueue,
	res Resource,
) (_err error) {
	logger.Tracef(ctx, "ReleaseResource(ctx, %s)", res)
	defer func() { logger.Tracef(ctx, "/ReleaseResource(ctx, %s): %v", res, _err) }()
	m.locker.Do(ctx, func() {
		buf, ok := m.buffers[res.Handle]
		if !ok {
			_err = types.ErrResource{Op: "release", Type: res.Type, SizeBytes: res.SizeBytes, Err: ErrUnknownHandle}
			return
		}
		delete(m.buffers, res.Handle)
		m.stats.Live--
		m.stats.LiveBytes -= uint64(len(buf.Data))
		m.stats.Releases++
	})
	return
}

func (m *HostManager) CopyResource(
	ctx context.Context,
	_ types.DeviceContext,
	_ types.CommandQueue,
	src Resource,
	dst Resource,
	sizeBytes uint64,
) (_err error) {
	logger.Tracef(ctx, "CopyResource(ctx, %s, %s, %d)", src, dst, sizeBytes)
	defer func() { logger.Tracef(ctx, "/CopyResource(ctx, %s, %s, %d): %v", src, dst, sizeBytes, _err) }()
	m.locker.Do(ctx, func() {
		srcBuf, ok := m.buffers[src.Handle]
		if !ok {
			_err = types.ErrResource{Op: "copy from", Type: src.Type, SizeBytes: sizeBytes, Err: ErrUnknownHandle}
			return
		}
		dstBuf, ok := m.buffers[dst.Handle]
		if !ok {
			_err = types.ErrResource{Op: "copy to", Type: dst.Type, SizeBytes: sizeBytes, Err: ErrUnknownHandle}
			return
		}
		if sizeBytes > uint64(len(srcBuf.Data)) || sizeBytes > uint64(len(dstBuf.Data)) {
			_err = types.ErrResource{
				Op:        "copy",
				Type:      dst.Type,
				SizeBytes: sizeBytes,
				Err:       fmt.Errorf("out of bounds: source has %d bytes, destination has %d bytes", len(srcBuf.Data), len(dstBuf.Data)),
			}
			return
		}
		copy(dstBuf.Data[:sizeBytes], srcBuf.Data[:sizeBytes])
		m.stats.Copies++
	})
	return
}

func (m *HostManager) Map(res Resource) ([]byte, error) {
	return xsync.DoR2(context.Background(), &m.locker, func() ([]byte, error) {
		buf, ok := m.buffers[res.Handle]
		if !ok {
			return nil, types.ErrResource{Op: "map", Type: res.Type, SizeBytes: res.SizeBytes, Err: ErrUnknownHandle}
		}
		return buf.Data, nil
	})
}

// Usage returns the usage the resource was created with.
func (m *HostManager) Usage(res Resource) (types.ResourceUsage, bool) {
	return xsync.DoR2(context.Background(), &m.locker, func() (types.ResourceUsage, bool) {
		buf, ok := m.buffers[res.Handle]
		return buf.Usage, ok
	})
}

func (m *HostManager) Stats() HostManagerStats {
	return xsync.DoR1(context.Background(), &m.locker, func() HostManagerStats {
		return m.stats
	})
}
