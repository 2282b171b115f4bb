// Package device abstracts duplex audio endpoints. The engine opens a
// stream against a Duplex and receives block callbacks; backends decide how
// blocks are produced and consumed (an in-process loopback for tests and
// headless deployments, an oto-backed playback device for real output).
package device

import "errors"

// ErrUnavailable is returned by Open when the device is already owned by
// another stream. Ownership is exclusive and is released by Stream.Close.
var ErrUnavailable = errors.New("device unavailable")

// StreamConfig describes the stream format requested from a device.
type StreamConfig struct {
	SampleRate int
	BlockSize  int
}

// BlockFunc is the per-block callback. in holds one block of captured
// samples; the callback must fill out with the same number of samples
// before returning. Both slices are valid only for the duration of the
// call. Implementations must not allocate or block.
type BlockFunc func(in, out []float64)

// Stream is one opened stream on a device.
//
// Stop halts callback delivery and does not return until any in-flight
// callback has completed; after Stop returns the callback is never invoked
// again. Close releases device ownership.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Duplex is a full-duplex audio device.
type Duplex interface {
	Name() string
	Open(cfg StreamConfig, fn BlockFunc) (Stream, error)
}

// Info describes an enumerable device for the control protocol.
type Info struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	InputChannels  int    `json:"input_channels"`
	OutputChannels int    `json:"output_channels"`
	SampleRate     int    `json:"sample_rate"`
}

// Source produces captured input. Fill writes one block of samples; a
// backend without a physical capture path uses a Source to synthesize its
// input. Fill is called from the stream's real-time path and must not
// allocate or block.
type Source interface {
	Fill(block []float64)
}

// SilenceSource is a Source producing all-zero blocks.
type SilenceSource struct{}

func (SilenceSource) Fill(block []float64) {
	clear(block)
}
