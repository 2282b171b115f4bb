// Package monitor encodes the processed output stream as Opus packets so a
// client can preview the changed voice over the control connection. Blocks
// are handed off from the audio callback through a drop-on-full channel; the
// encoder runs on its own goroutine and never touches the real-time path.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"layeh.com/gopus"
)

// Opus frames are 20 ms. The encoder accepts 8, 12, 16, 24 or 48 kHz input.
const (
	frameMs = 20
	// maxPacketBytes bounds one encoded packet. Opus recommends 4000 as a
	// safe ceiling for any frame at any bitrate.
	maxPacketBytes = 4000
)

// DefaultBitrate is used when the config does not set one.
const DefaultBitrate = 64000

// blockQueueLen is how many blocks may sit between the audio callback and
// the encoder goroutine before Push starts dropping.
const blockQueueLen = 16

// Sink receives encoded Opus packets. The slice is only valid until the
// next packet is produced.
type Sink func(packet []byte)

// Monitor buffers processed blocks into 20 ms frames and Opus-encodes them.
// Push is safe to call from the audio callback; it is non-blocking and
// allocation-free once the pool is warm.
type Monitor struct {
	enc       *gopus.Encoder
	frameSize int
	logger    *slog.Logger

	blocks chan []float64
	pool   sync.Pool

	active  atomic.Bool
	dropped atomic.Uint64

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}

	pending []int16
	frame   []int16
}

// New creates a monitor encoder for mono audio at the given rate. A nil
// logger falls back to [slog.Default].
func New(sampleRate, bitrate int, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("monitor: opus does not support %d Hz input", sampleRate)
	}
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("monitor: create opus encoder: %w", err)
	}
	enc.SetBitrate(bitrate)

	frameSize := sampleRate * frameMs / 1000
	return &Monitor{
		enc:       enc,
		frameSize: frameSize,
		logger:    logger,
		blocks:    make(chan []float64, blockQueueLen),
		pending:   make([]int16, 0, frameSize*4),
		frame:     make([]int16, frameSize),
	}, nil
}

// Push queues a processed block for encoding. It drops the block when the
// encoder is behind or the monitor is stopped.
func (m *Monitor) Push(block []float64) {
	if !m.active.Load() {
		return
	}
	buf, _ := m.pool.Get().([]float64)
	if cap(buf) < len(block) {
		buf = make([]float64, len(block))
	}
	buf = buf[:len(block)]
	copy(buf, block)

	select {
	case m.blocks <- buf:
	default:
		m.pool.Put(buf[:0])
		m.dropped.Add(1)
	}
}

// Start begins encoding and delivering packets to sink. Starting an already
// running monitor is a no-op.
func (m *Monitor) Start(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active.Load() {
		return
	}
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})
	m.pending = m.pending[:0]
	m.active.Store(true)
	go m.run(sink, m.done, m.stopped)
}

// Stop halts encoding and waits for the encoder goroutine to exit. Queued
// blocks are discarded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active.Load() {
		return
	}
	m.active.Store(false)
	close(m.done)
	<-m.stopped
	for {
		select {
		case buf := <-m.blocks:
			m.pool.Put(buf[:0])
		default:
			return
		}
	}
}

// Active reports whether the monitor is currently encoding.
func (m *Monitor) Active() bool {
	return m.active.Load()
}

// Dropped returns how many blocks were discarded because the encoder fell
// behind.
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Monitor) run(sink Sink, done, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-done:
			return
		case block := <-m.blocks:
			m.consume(block, sink)
			m.pool.Put(block[:0])
		}
	}
}

// consume converts a block to int16 PCM and emits every complete frame.
func (m *Monitor) consume(block []float64, sink Sink) {
	for _, v := range block {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		m.pending = append(m.pending, int16(v*32767))
	}
	for len(m.pending) >= m.frameSize {
		copy(m.frame, m.pending[:m.frameSize])
		n := copy(m.pending, m.pending[m.frameSize:])
		m.pending = m.pending[:n]

		packet, err := m.enc.Encode(m.frame, m.frameSize, maxPacketBytes)
		if err != nil {
			m.logger.Warn("opus encode failed, frame skipped", "error", err)
			continue
		}
		sink(packet)
	}
}
