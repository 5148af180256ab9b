package audio

import (
	"math"
	"testing"
)

func TestFloat32ToPCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -1}
	got := PCM16ToFloat32(Float32ToPCM16(in))

	if len(got) != len(in) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1e-4 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], in[i])
		}
	}
}

func TestFloat32ToPCM16_Clamps(t *testing.T) {
	out := Float32ToPCM16([]float32{2.0, -2.0})

	hi := int16(out[0]) | int16(out[1])<<8
	lo := int16(out[2]) | int16(out[3])<<8
	if hi != math.MaxInt16 {
		t.Errorf("over-range sample = %d, want %d", hi, math.MaxInt16)
	}
	if lo != -math.MaxInt16 {
		t.Errorf("under-range sample = %d, want %d", lo, -math.MaxInt16)
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []float32{0, 0, 0, 0}, 0},
		{"constant", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"alternating", []float32{1, -1, 1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.samples); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("RMS = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestDownmix(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	got := Downmix(stereo, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("Downmix length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	mono := []float32{1, 2, 3}
	got := Downmix(mono, 1)
	if &got[0] != &mono[0] {
		t.Error("mono input should be returned unchanged")
	}
}
