package soundboard

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// pcm is decoded audio before conversion to the engine format.
type pcm struct {
	samples  []float64 // interleaved
	channels int
	rate     int
}

// LoadFile decodes an audio file into a clip at the target sample rate.
// The format is picked by extension: .wav, .mp3 and .ogg are supported.
func LoadFile(path string, targetRate int) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("soundboard: %w", err)
	}
	defer f.Close()

	var raw pcm
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		raw, err = decodeWAV(f)
	case ".mp3":
		raw, err = decodeMP3(f)
	case ".ogg":
		raw, err = decodeOgg(f)
	default:
		return nil, fmt.Errorf("soundboard: unsupported format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("soundboard: decode %s: %w", filepath.Base(path), err)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Clip{
		ID:      id,
		Name:    id,
		samples: toMono(raw, targetRate),
	}, nil
}

func decodeWAV(f io.ReadSeeker) (pcm, error) {
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return pcm{}, err
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return pcm{}, fmt.Errorf("missing format chunk")
	}
	scale, err := wavScale(buf.SourceBitDepth)
	if err != nil {
		return pcm{}, err
	}
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	return pcm{samples: samples, channels: buf.Format.NumChannels, rate: buf.Format.SampleRate}, nil
}

// wavScale returns the full-scale divisor for a WAV bit depth. A corrupt
// format chunk can report 0, which would be a negative shift; reject it
// here instead of panicking at load time.
func wavScale(bitDepth int) (float64, error) {
	if bitDepth < 1 || bitDepth > 64 {
		return 0, fmt.Errorf("bad bit depth %d", bitDepth)
	}
	return float64(uint64(1) << (bitDepth - 1)), nil
}

// decodeMP3 reads the whole stream. go-mp3 always emits 16-bit
// little-endian stereo regardless of the source channel layout.
func decodeMP3(f io.Reader) (pcm, error) {
	d, err := mp3.NewDecoder(f)
	if err != nil {
		return pcm{}, err
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return pcm{}, err
	}
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return pcm{samples: samples, channels: 2, rate: d.SampleRate()}, nil
}

func decodeOgg(f io.Reader) (pcm, error) {
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return pcm{}, err
	}
	var samples []float64
	buf := make([]float32, 4096)
	for {
		n, err := r.Read(buf)
		for _, v := range buf[:n] {
			samples = append(samples, float64(v))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return pcm{}, err
		}
	}
	return pcm{samples: samples, channels: r.Channels(), rate: r.SampleRate()}, nil
}

// toMono downmixes interleaved channels by averaging and linearly resamples
// to the target rate. Linear interpolation is plenty for soundboard clips.
func toMono(raw pcm, targetRate int) []float64 {
	frames := len(raw.samples) / raw.channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < raw.channels; c++ {
			sum += raw.samples[i*raw.channels+c]
		}
		mono[i] = sum / float64(raw.channels)
	}
	if raw.rate == targetRate || frames == 0 {
		return mono
	}

	ratio := float64(raw.rate) / float64(targetRate)
	out := make([]float64, int(float64(frames)/ratio))
	for i := range out {
		src := float64(i) * ratio
		j := int(src)
		if j >= frames-1 {
			out[i] = mono[frames-1]
			continue
		}
		frac := src - float64(j)
		out[i] = mono[j]*(1-frac) + mono[j+1]*frac
	}
	return out
}
