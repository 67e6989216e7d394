// Package audio streams the teacher's microphone to students: capture is
// decimated to 16 kHz mono int16, base64 framed for the session channel,
// and played back gaplessly on the listener's own timeline.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// TargetRate is the broadcast sample rate.
const TargetRate = 16000

// Downsample picks in[floor(i*ratio)] for ratio = srcRate/dstRate. There
// is no filtering; rates below dstRate are stretched by repetition.
func Downsample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || len(in) == 0 {
		return nil
	}
	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Floor(float64(len(in)) / ratio))
	out := make([]float32, outLen)
	for i := range out {
		idx := int(math.Floor(float64(i) * ratio))
		if idx >= len(in) {
			idx = len(in) - 1
		}
		out[i] = in[idx]
	}
	return out
}

// Quantize maps a sample in [-1, 1] to int16, rounding half up and
// clamping out-of-range input.
func Quantize(s float32) int16 {
	v := math.Floor(float64(s)*32768 + 0.5)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Encode turns one captured buffer into an audio_data payload.
func Encode(samples []float32, srcRate, dstRate int) string {
	down := Downsample(samples, srcRate, dstRate)
	if len(down) == 0 {
		return ""
	}
	buf := make([]byte, 2*len(down))
	for i, s := range down {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(Quantize(s)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Decode reverses Encode, yielding samples in [-1, 1).
func Decode(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d", ErrMalformedFrame, len(raw))
	}
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return out, nil
}
