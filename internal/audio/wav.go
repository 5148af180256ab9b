package audio

import (
	"bytes"
	"fmt"
	"io"

	wav "github.com/youpy/go-wav"
)

const wavBitsPerSample = 16

// EncodeWAV renders mono float32 samples as a complete 16-bit PCM WAV file,
// the payload format the batch transcription endpoint accepts.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid sample rate %d", sampleRate)
	}

	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(len(samples)), 1, uint32(sampleRate), wavBitsPerSample)

	wavSamples := make([]wav.Sample, len(samples))
	pcm := Float32ToPCM16(samples)
	for i := range wavSamples {
		v := int(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		wavSamples[i].Values[0] = v
	}
	if err := w.WriteSamples(wavSamples); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV reads a WAV stream and returns its samples as normalised mono
// float32 together with the declared sample rate. Multi-channel files are
// downmixed.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav: read: %w", err)
	}
	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav: read format: %w", err)
	}

	var raw []float32
	buf := make([]wav.Sample, 2048)
	for {
		samples, err := reader.ReadSamples(uint32(len(buf)))
		for _, s := range samples {
			for c := 0; c < int(format.NumChannels); c++ {
				raw = append(raw, float32(reader.FloatValue(s, uint(c))))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("audio: decode wav: read samples: %w", err)
		}
	}

	mono := Downmix(raw, int(format.NumChannels))
	return mono, int(format.SampleRate), nil
}
