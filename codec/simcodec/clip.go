package simcodec

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/xaionaro-go/rawpipeline/codec"
	"github.com/xaionaro-go/rawpipeline/codec/resource"
	"github.com/xaionaro-go/rawpipeline/logger"
	"github.com/xaionaro-go/rawpipeline/types"
)

const (
	// URLScheme is the scheme of the clip paths understood by OpenClip,
	// e.g. "sim://4096x2160?frames=100&fps=23.976&lut=true".
	URLScheme = "sim"

	defaultFrameCount = 24
	defaultFrameRate  = 24

	post3DLUTEdge = 17
)

var (
	ErrNoSuchClip = errors.New("no such clip")
)

// ClipInfo describes a synthetic clip.
type ClipInfo struct {
	Resolution types.Resolution
	FrameCount uint64
	FrameRate  float32
	Post3DLUT  bool
}

// AddClip makes OpenClip accept the path and return a clip described by info.
func (c *Codec) AddClip(path string, info ClipInfo) {
	c.locker.Do(context.Background(), func() {
		c.clips[path] = info
	})
}

// ParseClipURL parses paths like "sim://4096x2160?frames=100&fps=24&lut=true".
func ParseClipURL(path string) (ClipInfo, error) {
	u, err := url.Parse(path)
	if err != nil {
		return ClipInfo{}, types.ErrIO{Path: path, Err: err}
	}
	if u.Scheme != URLScheme {
		return ClipInfo{}, types.ErrIO{Path: path, Err: ErrNoSuchClip}
	}

	info := ClipInfo{
		FrameCount: defaultFrameCount,
		FrameRate:  defaultFrameRate,
	}
	if err := info.Resolution.Parse(u.Host); err != nil {
		return ClipInfo{}, types.ErrFormat{Path: path, Err: err}
	}
	if info.Resolution.Width == 0 || info.Resolution.Height == 0 {
		return ClipInfo{}, types.ErrFormat{Path: path, Err: fmt.Errorf("empty resolution %s", info.Resolution)}
	}

	query := u.Query()
	if s := query.Get("frames"); s != "" {
		info.FrameCount, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return ClipInfo{}, types.ErrFormat{Path: path, Err: fmt.Errorf("unable to parse the frame count: %w", err)}
		}
	}
	if s := query.Get("fps"); s != "" {
		fps, err := strconv.ParseFloat(s, 32)
		if err != nil || fps <= 0 {
			return ClipInfo{}, types.ErrFormat{Path: path, Err: fmt.Errorf("invalid frame rate '%s'", s)}
		}
		info.FrameRate = float32(fps)
	}
	if s := query.Get("lut"); s != "" {
		info.Post3DLUT, err = strconv.ParseBool(s)
		if err != nil {
			return ClipInfo{}, types.ErrFormat{Path: path, Err: fmt.Errorf("unable to parse the LUT flag: %w", err)}
		}
	}
	return info, nil
}

func (c *Codec) OpenClip(ctx context.Context, path string) (_ret codec.Clip, _err error) {
	logger.Debugf(ctx, "OpenClip(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/OpenClip(ctx, '%s'): %v", path, _err) }()

	if c.IsClosed() {
		return nil, codec.Verify("OpenClip", types.ResultCodeAbort)
	}

	var (
		info ClipInfo
		ok   bool
	)
	c.locker.Do(ctx, func() {
		info, ok = c.clips[path]
	})
	if !ok {
		var err error
		info, err = ParseClipURL(path)
		if err != nil {
			return nil, err
		}
	}

	cl := &clip{codec: c, info: info}
	if info.Post3DLUT {
		lut, err := c.newPost3DLUT(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to create the 3D LUT: %w", err)
		}
		cl.post3DLUT = lut
	}
	return cl, nil
}

type clip struct {
	codec     *Codec
	info      ClipInfo
	post3DLUT *post3DLUT
}

var (
	_ codec.Clip   = (*clip)(nil)
	_ codec.ClipEx = (*clip)(nil)
)

func (cl *clip) FrameCount() uint64 {
	return cl.info.FrameCount
}

func (cl *clip) Width() uint32 {
	return cl.info.Resolution.Width
}

func (cl *clip) Height() uint32 {
	return cl.info.Resolution.Height
}

func (cl *clip) FrameRate() float32 {
	return cl.info.FrameRate
}

func (cl *clip) Post3DLUT() (codec.Post3DLUT, bool) {
	if cl.post3DLUT == nil {
		return nil, false
	}
	return cl.post3DLUT, true
}

func (cl *clip) AsClipEx() (codec.ClipEx, error) {
	return cl, nil
}

func (cl *clip) checkFrameIndex(frameIndex uint64) error {
	if frameIndex >= cl.info.FrameCount {
		return codec.Verify(fmt.Sprintf("frame #%d of %d", frameIndex, cl.info.FrameCount), types.ResultCodeInvalidArg)
	}
	return nil
}

// BitStreamSizeBytes varies from frame to frame like the size of compressed
// frames of a real clip does.
func (cl *clip) BitStreamSizeBytes(ctx context.Context, frameIndex uint64) (uint64, error) {
	if err := cl.checkFrameIndex(frameIndex); err != nil {
		return 0, err
	}
	base := uint64(cl.info.Resolution.Width)*uint64(cl.info.Resolution.Height)/16 + bitStreamHeaderSize
	return base + (frameIndex%4)*base/8, nil
}

func (cl *clip) CreateJobReadFrame(
	ctx context.Context,
	frameIndex uint64,
	bitStream resource.Resource,
	sizeBytes uint64,
) (codec.Job, error) {
	if err := cl.checkFrameIndex(frameIndex); err != nil {
		return nil, err
	}
	if bitStream.IsNone() {
		return nil, codec.Verify("CreateJobReadFrame", types.ResultCodePointer)
	}
	return cl.codec.newJob(types.StageRead, frameIndex, &readWork{
		clip:       cl,
		frameIndex: frameIndex,
		bitStream:  bitStream,
		sizeBytes:  sizeBytes,
	}), nil
}

type post3DLUT struct {
	res resource.Resource
}

var _ codec.Post3DLUT = (*post3DLUT)(nil)

func (c *Codec) newPost3DLUT(ctx context.Context) (*post3DLUT, error) {
	size := uint64(post3DLUTEdge * post3DLUTEdge * post3DLUTEdge * 3 * 4)
	res, err := c.resources.CreateResource(ctx, 0, 0, size, types.ResourceTypeBufferCPU, types.ResourceUsageReadCPUWriteCPU)
	if err != nil {
		return nil, err
	}
	c.locker.Do(ctx, func() {
		c.allocatedClipLUTs = append(c.allocatedClipLUTs, res)
	})
	return &post3DLUT{res: res}, nil
}

func (l *post3DLUT) ResourceCPU() resource.Resource {
	return l.res
}

func (l *post3DLUT) ResourceSizeBytes() uint64 {
	return l.res.SizeBytes
}
