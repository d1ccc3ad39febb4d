package audio

import "math"

const (
	// OutputSampleRate is the fixed rate of all synthesized audio.
	OutputSampleRate = 24000
	// InputSampleRate is the fixed rate of microphone audio sent to recognizers.
	InputSampleRate = 16000
	// BytesPerSample is the width of one PCM16 mono sample.
	BytesPerSample = 2

	// DefaultAlignBytes is the playback frame boundary emitted chunks respect.
	DefaultAlignBytes = 256

	// FadeSamples is the length of the fade-in ramp applied to the first
	// chunk of a track (5ms at 24kHz). Removes the DC-offset pop at
	// utterance start.
	FadeSamples = 120

	wavHeaderSize = 44
)

// HasWAVHeader reports whether buf starts with a RIFF container header.
func HasWAVHeader(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == 'R' && buf[1] == 'I' && buf[2] == 'F' && buf[3] == 'F'
}

// StripWAVHeader removes the 44-byte WAV header when present.
func StripWAVHeader(buf []byte) []byte {
	if HasWAVHeader(buf) && len(buf) >= wavHeaderSize {
		return buf[wavHeaderSize:]
	}
	return buf
}

// FadeIn applies a linear ramp in place over the first FadeSamples samples
// of a PCM16 little-endian buffer. sample[i] is scaled by i/FadeSamples and
// rounded to nearest, so sample[0] is always silenced.
func FadeIn(pcm []byte) {
	n := len(pcm) / BytesPerSample
	if n > FadeSamples {
		n = FadeSamples
	}
	for i := 0; i < n; i++ {
		lo := pcm[2*i]
		hi := pcm[2*i+1]
		s := int16(uint16(lo) | uint16(hi)<<8)
		scaled := int16(math.Round(float64(s) * float64(i) / float64(FadeSamples)))
		pcm[2*i] = byte(uint16(scaled))
		pcm[2*i+1] = byte(uint16(scaled) >> 8)
	}
}

// AlignDown rounds n down to the nearest multiple of align.
func AlignDown(n, align int) int {
	if align <= 0 {
		return n
	}
	return n - n%align
}
