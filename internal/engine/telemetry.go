package engine

// Telemetry is one snapshot of the audio path's health, published by the
// callback after every block and read by the control path on demand. Levels
// are mean absolute amplitude over the last block.
type Telemetry struct {
	Processing       bool    `json:"processing"`
	InputLevel       float64 `json:"input_level"`
	OutputLevel      float64 `json:"output_level"`
	LatencyMs        float64 `json:"latency_ms"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	BlocksProcessed  uint64  `json:"blocks_processed"`
	SampleRate       int     `json:"sample_rate"`
	BlockSize        int     `json:"block_size"`
}

func meanAbs(block []float64) float64 {
	if len(block) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range block {
		if v < 0 {
			sum -= v
		} else {
			sum += v
		}
	}
	return sum / float64(len(block))
}
