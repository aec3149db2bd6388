package audio

import (
	"encoding/binary"
	"math"
)

const bitsPerSample = 16

// EncodeWAV wraps raw 16-bit PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * bitsPerSample / 8
	out := make([]byte, 44+len(pcm))

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // linear PCM
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], bitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// RMS returns the root-mean-square energy of a 16-bit PCM buffer in sample
// units (0 to 32767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Float32ToPCM converts normalised float samples to 16-bit PCM, clamping
// values outside [-1, 1].
func Float32ToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = max(-1, min(1, s))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return out
}

// Float32Mono returns the clip as mono float samples in [-1, 1], averaging
// channels when the clip is multi-channel.
func (c Clip) Float32Mono() []float32 {
	ch := max(c.Channels, 1)
	frames := len(c.PCM) / (2 * ch)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for j := range ch {
			off := (i*ch + j) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(c.PCM[off:]))) / 32768.0
		}
		mono[i] = sum / float32(ch)
	}
	return mono
}
