package audio

import (
	"testing"
)

func constant(n int, v int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return samples
}

func testVAD() *VADDetector {
	return NewVADDetector(&VADConfig{
		EnergyThreshold: 500.0,
		SilenceWindows:  3,
		WindowSize:      160,
	})
}

func TestVADDetector_SpeechStart(t *testing.T) {
	vad := testVAD()

	events := vad.Process(constant(160*4, 5000))
	if len(events) != 1 || events[0] != SpeechStarted {
		t.Fatalf("Expected a single SpeechStarted, got %v", events)
	}
	if !vad.IsSpeaking() {
		t.Error("Expected speech state to be true")
	}
}

func TestVADDetector_Silence(t *testing.T) {
	vad := testVAD()

	events := vad.Process(constant(160*10, 10))
	if len(events) != 0 {
		t.Errorf("Expected no events for silence, got %v", events)
	}
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false")
	}
}

func TestVADDetector_SpeechToSilence(t *testing.T) {
	vad := testVAD()

	vad.Process(constant(160*2, 5000))

	// two silent windows are not enough
	if events := vad.Process(constant(160*2, 10)); len(events) != 0 {
		t.Fatalf("Expected no events yet, got %v", events)
	}

	events := vad.Process(constant(160, 10))
	if len(events) != 1 || events[0] != SpeechEnded {
		t.Fatalf("Expected SpeechEnded, got %v", events)
	}
}

func TestVADDetector_CarriesPartialWindows(t *testing.T) {
	vad := testVAD()

	if events := vad.Process(constant(100, 5000)); len(events) != 0 {
		t.Fatalf("Expected no events for a partial window, got %v", events)
	}

	events := vad.Process(constant(60, 5000))
	if len(events) != 1 || events[0] != SpeechStarted {
		t.Errorf("Expected SpeechStarted once the window fills, got %v", events)
	}
}

func TestVADDetector_Threshold(t *testing.T) {
	low := NewVADDetector(&VADConfig{EnergyThreshold: 100.0, SilenceWindows: 3, WindowSize: 160})
	high := NewVADDetector(&VADConfig{EnergyThreshold: 5000.0, SilenceWindows: 3, WindowSize: 160})

	samples := constant(160, 1000)

	low.Process(samples)
	if !low.IsSpeaking() {
		t.Error("Expected low threshold to detect speech")
	}

	high.Process(samples)
	if high.IsSpeaking() {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := testVAD()
	vad.Process(constant(160, 5000))

	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after reset")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 500.0 {
		t.Errorf("Expected default EnergyThreshold 500.0, got %f", config.EnergyThreshold)
	}
	if config.WindowSize != 320 {
		t.Errorf("Expected default WindowSize 320, got %d", config.WindowSize)
	}
}
