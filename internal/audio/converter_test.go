package audio

import (
	"math"
	"testing"
)

func TestFloat32ToPCM16_Boundaries(t *testing.T) {
	tests := []struct {
		in       float32
		expected int16
	}{
		{1.0, 32767},
		{-1.0, -32768},
		{0, 0},
		{1.5, 32767},
		{-7, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		got := Float32ToPCM16(tt.in)
		if got != tt.expected {
			t.Errorf("Float32ToPCM16(%v): expected %d, got %d", tt.in, tt.expected, got)
		}
	}
}

func TestFloat32ToPCM16_TruncatesTowardZero(t *testing.T) {
	// 0.9 / 32767 of a step must not round up
	if got := Float32ToPCM16(0.9 / 32767); got != 0 {
		t.Errorf("Expected 0 for a sub-step positive sample, got %d", got)
	}
	if got := Float32ToPCM16(-0.9 / 32768); got != 0 {
		t.Errorf("Expected 0 for a sub-step negative sample, got %d", got)
	}
}

func TestPCM16Bytes(t *testing.T) {
	samples := []int16{0, 32767, -32768}
	bytes := PCM16ToBytes(samples)

	expected := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	if len(bytes) != len(expected) {
		t.Fatalf("Expected %d bytes, got %d", len(expected), len(bytes))
	}
	for i, exp := range expected {
		if bytes[i] != exp {
			t.Errorf("Expected byte %d at index %d, got %d", exp, i, bytes[i])
		}
	}

	decoded, err := BytesToPCM16(bytes)
	if err != nil {
		t.Fatalf("BytesToPCM16 failed: %v", err)
	}
	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("Expected sample %d at index %d, got %d", s, i, decoded[i])
		}
	}
}

func TestBytesToPCM16_OddLength(t *testing.T) {
	if _, err := BytesToPCM16([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestEncodeMulaw(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}

	mulaw, err := EncodeMulaw(samples, 8000, 8000)
	if err != nil {
		t.Fatalf("EncodeMulaw failed: %v", err)
	}
	if len(mulaw) != len(samples) {
		t.Errorf("Expected μ-law length %d, got %d", len(samples), len(mulaw))
	}

	// G.711 encodes silence as 0xFF
	if mulaw[0] != 0xFF {
		t.Errorf("Expected 0xFF for silence, got 0x%02X", mulaw[0])
	}
}

func TestEncodeMulaw_Resample(t *testing.T) {
	samples := make([]int16, 2400) // 0.1 seconds at 24kHz
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	mulaw, err := EncodeMulaw(samples, 24000, 8000)
	if err != nil {
		t.Fatalf("EncodeMulaw failed: %v", err)
	}

	if len(mulaw) < 750 || len(mulaw) > 850 {
		t.Errorf("Expected μ-law length around 800, got %d", len(mulaw))
	}
}

func TestEncodeMulaw_Empty(t *testing.T) {
	if _, err := EncodeMulaw(nil, 8000, 8000); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestDecodeMulaw(t *testing.T) {
	pcm, err := DecodeMulaw([]byte{0xFF, 0x7F, 0x00, 0x80})
	if err != nil {
		t.Fatalf("DecodeMulaw failed: %v", err)
	}
	if len(pcm) != 8 {
		t.Fatalf("Expected 8 PCM bytes, got %d", len(pcm))
	}

	samples, _ := BytesToPCM16(pcm)
	if samples[0] != 0 {
		t.Errorf("Expected 0xFF to decode to 0, got %d", samples[0])
	}
	if samples[2] >= 0 || samples[3] <= 0 {
		t.Errorf("Expected 0x00 negative and 0x80 positive, got %d and %d", samples[2], samples[3])
	}
}

func TestMulawRoundTrip_SmallSignal(t *testing.T) {
	for _, s := range []int16{-2048, -256, -64, 0, 64, 256, 2048} {
		mulaw, _ := EncodeMulaw([]int16{s}, 8000, 8000)
		pcm, _ := DecodeMulaw(mulaw)
		back, _ := BytesToPCM16(pcm)

		diff := int(s) - int(back[0])
		if diff < 0 {
			diff = -diff
		}
		if diff > 128 {
			t.Errorf("Round-trip for %d drifted to %d", s, back[0])
		}
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	if got := len(resample(samples, 8000, 16000)); got != 200 {
		t.Errorf("Expected resampled length 200, got %d", got)
	}
	if got := len(resample(samples, 16000, 8000)); got != 50 {
		t.Errorf("Expected resampled length 50, got %d", got)
	}
	if got := len(resample(samples, 8000, 8000)); got != len(samples) {
		t.Errorf("Expected unchanged length %d, got %d", len(samples), got)
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	expected := math.Sqrt((1000000 + 1000000 + 4000000 + 4000000) / 4.0)
	if math.Abs(rms-expected) > 0.1 {
		t.Errorf("Expected RMS %.2f, got %.2f", expected, rms)
	}

	if CalculateRMS(nil) != 0.0 {
		t.Error("Expected RMS 0.0 for empty slice")
	}
}
