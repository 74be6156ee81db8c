package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
)

// CaptureConfig selects and shapes the loopback stream.
type CaptureConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	QueueFrames     int
	Device          string   // exact-ish device name; empty selects the first loopback device
	LoopbackTokens  []string // substrings identifying loopback devices
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if c.QueueFrames <= 0 {
		c.QueueFrames = DefaultQueueFrames
	}
	if len(c.LoopbackTokens) == 0 {
		c.LoopbackTokens = DefaultLoopbackTokens
	}
	return c
}

// DeviceInfo is a capture-capable device as reported by the host.
type DeviceInfo struct {
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	Loopback          bool    `json:"loopback"`
}

// Capturer reads s16le PCM from a loopback device. Frames are queued in
// order and never dropped: when the consumer falls behind the reader blocks
// until the queue drains or the capture is stopped. A Capturer is single use.
type Capturer struct {
	cfg    CaptureConfig
	format Format
	outCh  chan Frame

	mu       sync.Mutex
	running  bool
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

var _ Source = (*Capturer)(nil)

// NewCapturer initializes the host audio API.
func NewCapturer(cfg CaptureConfig) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Backend, "initialize audio host")
	}
	cfg = cfg.withDefaults()
	return &Capturer{
		cfg: cfg,
		format: Format{
			SampleRate:     cfg.SampleRate,
			Channels:       cfg.Channels,
			BytesPerSample: SampleBytes,
		},
		outCh: make(chan Frame, cfg.QueueFrames),
		done:  make(chan struct{}),
	}, nil
}

// Format returns the PCM format frames are delivered in.
func (c *Capturer) Format() Format { return c.format }

// Frames returns the ordered frame channel; it is closed after Stop.
func (c *Capturer) Frames() <-chan Frame { return c.outCh }

// Start opens the selected device and begins reading.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return apperrors.Wrap(err, apperrors.Backend, "enumerate devices")
	}
	dev := c.selectDevice(devices)
	if dev == nil {
		return apperrors.New(apperrors.Backend, "no loopback capture device found").
			WithMetadata("device", c.cfg.Device)
	}

	buf := make([]int16, c.cfg.FramesPerBuffer*c.cfg.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: c.cfg.Channels,
			Latency:  dev.DefaultHighInputLatency,
		},
		SampleRate:      float64(c.cfg.SampleRate),
		FramesPerBuffer: c.cfg.FramesPerBuffer,
	}, buf)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Backend, "open stream on %s", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return apperrors.Wrapf(err, apperrors.Backend, "start stream on %s", dev.Name)
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.running = true

	slog.Info("started loopback capture", "device", dev.Name, "format", c.format.String())
	go c.readLoop(readCtx, stream, buf, dev.Name)
	return nil
}

func (c *Capturer) readLoop(ctx context.Context, stream *portaudio.Stream, buf []int16, device string) {
	defer close(c.done)
	defer close(c.outCh)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := stream.Read(); !bufferValid(err) {
			slog.Debug("audio read error", "device", device, "error", err)
			return
		} else if err != nil {
			slog.Warn("capture input overflowed", "device", device)
		}

		frame := Frame{
			Data:      Int16ToBytes(buf, nil),
			Timestamp: time.Now().UnixNano(),
		}
		select {
		case c.outCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// bufferValid reports whether a read filled the buffer. An overflow means
// the driver lost audio before this read; the buffer itself is still good.
func bufferValid(err error) bool {
	return err == nil || errors.Is(err, portaudio.InputOverflowed)
}

// Stop ends the capture and closes the frame channel. Frames already queued
// remain readable.
func (c *Capturer) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		running, stream, cancel := c.running, c.stream, c.cancel
		c.running = false
		c.mu.Unlock()

		if !running {
			close(c.outCh)
			_ = portaudio.Terminate()
			return
		}

		cancel()
		<-c.done
		if stopErr := stream.Stop(); stopErr != nil {
			err = apperrors.Wrap(stopErr, apperrors.Backend, "stop stream")
		}
		_ = stream.Close()
		_ = portaudio.Terminate()
	})
	return err
}

func (c *Capturer) selectDevice(devices []*portaudio.DeviceInfo) *portaudio.DeviceInfo {
	var fallback *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < c.cfg.Channels {
			continue
		}
		if c.cfg.Device != "" {
			if strings.EqualFold(dev.Name, c.cfg.Device) {
				return dev
			}
			if fallback == nil && containsFold(dev.Name, c.cfg.Device) {
				fallback = dev
			}
			continue
		}
		if IsLoopback(dev.Name, c.cfg.LoopbackTokens) {
			return dev
		}
	}
	return fallback
}

// ListDevices enumerates input-capable devices.
func ListDevices(loopbackTokens []string) ([]DeviceInfo, error) {
	if len(loopbackTokens) == 0 {
		loopbackTokens = DefaultLoopbackTokens
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Backend, "initialize audio host")
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Backend, "enumerate devices")
	}

	result := make([]DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		info := DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			Loopback:          IsLoopback(dev.Name, loopbackTokens),
		}
		if dev.HostApi != nil {
			info.HostAPI = dev.HostApi.Name
		}
		result = append(result, info)
	}
	return result, nil
}

// IsLoopback reports whether a device name looks like a system output monitor.
func IsLoopback(name string, tokens []string) bool {
	for _, tok := range tokens {
		if containsFold(name, tok) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Int16ToBytes encodes samples as little-endian PCM, reusing dst when it has
// capacity.
func Int16ToBytes(samples []int16, dst []byte) []byte {
	n := len(samples) * SampleBytes
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*SampleBytes:], uint16(s))
	}
	return dst
}
