// Package otodev provides a playback-backed duplex device on top of the oto
// audio library. Output blocks are pulled by oto's player goroutine and sent
// to the system mixer; input comes from a configurable Source, since oto has
// no capture path. One oto context exists per process, so the package keeps
// a singleton and hands out at most one stream at a time.
package otodev

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"github.com/voxmorph/voxmorph/internal/device"
)

// Device is an oto-backed playback device.
type Device struct {
	source device.Source
	busy   atomic.Bool

	mu  sync.Mutex
	ctx *oto.Context
}

// New creates the device. src feeds the capture side; nil means silence.
func New(src device.Source) *Device {
	if src == nil {
		src = device.SilenceSource{}
	}
	return &Device{source: src}
}

func (d *Device) Name() string { return "oto" }

// Open claims the device, initializes the shared oto context on first use
// and prepares a player-backed stream.
func (d *Device) Open(cfg device.StreamConfig, fn device.BlockFunc) (device.Stream, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return nil, device.ErrUnavailable
	}
	ctx, err := d.context(cfg.SampleRate)
	if err != nil {
		d.busy.Store(false)
		return nil, fmt.Errorf("oto context: %w (%w)", err, device.ErrUnavailable)
	}
	rd := &blockReader{
		source: d.source,
		fn:     fn,
		in:     make([]float64, cfg.BlockSize),
		out:    make([]float64, cfg.BlockSize),
	}
	return &stream{
		dev:    d,
		player: ctx.NewPlayer(rd),
		reader: rd,
	}, nil
}

func (d *Device) context(sampleRate int) (*oto.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		return d.ctx, nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	d.ctx = ctx
	return ctx, nil
}

type stream struct {
	dev    *Device
	player *oto.Player
	reader *blockReader

	mu     sync.Mutex
	closed bool
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrUnavailable
	}
	s.reader.enabled.Store(true)
	s.player.Play()
	return nil
}

// Stop pauses playback and disables the reader. oto's Pause returns after
// the player goroutine has left Read, so no callback runs past this point.
func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader.enabled.Store(false)
	s.player.Pause()
	return nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.reader.enabled.Store(false)
	err := s.player.Close()
	s.dev.busy.Store(false)
	return err
}

// blockReader bridges oto's pull model to the push-style block callback:
// every Read drains whole blocks through the callback and serializes them
// as little-endian float32. Partial block remainders are carried between
// Read calls.
type blockReader struct {
	source  device.Source
	fn      device.BlockFunc
	in      []float64
	out     []float64
	buf     []byte // serialized current block
	off     int    // consumed bytes of buf
	enabled atomic.Bool
}

func (r *blockReader) Read(p []byte) (int, error) {
	if r.buf == nil {
		r.buf = make([]byte, len(r.out)*4)
		r.off = len(r.buf)
	}
	n := 0
	for n < len(p) {
		if r.off == len(r.buf) {
			if !r.enabled.Load() {
				// Keep the player fed with silence while paused or
				// stopping so the device never underruns.
				for i := n; i < len(p); i++ {
					p[i] = 0
				}
				return len(p), nil
			}
			r.source.Fill(r.in)
			r.fn(r.in, r.out)
			r.encode()
		}
		c := copy(p[n:], r.buf[r.off:])
		n += c
		r.off += c
	}
	return n, nil
}

// encode serializes the out block as little-endian float32.
func (r *blockReader) encode() {
	for i, v := range r.out {
		bits := math.Float32bits(float32(v))
		binary.LittleEndian.PutUint32(r.buf[i*4:], bits)
	}
	r.off = 0
}
