package audio

import (
	"encoding/binary"
	"math"
)

// DecodePCM16 converts little-endian signed 16-bit PCM into normalised
// samples by dividing each value by 32768. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/BytesPerSample)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

// EncodePCM16 converts normalised samples into little-endian signed 16-bit
// PCM, scaling by 32767, truncating toward zero and clamping to the int16
// range.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := s * 32767
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// RMS returns the root-mean-square level of samples, or 0 for an empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
