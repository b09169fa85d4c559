package audio

// VADConfig holds configuration for energy-based voice activity detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceWindows  int     // Consecutive silent windows that end an utterance
	WindowSize      int     // Samples per analysis window
}

// DefaultVADConfig returns thresholds tuned for 16kHz PCM16 input with
// 20ms analysis windows
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceWindows:  15, // 300ms
		WindowSize:      320,
	}
}

// VADEvent marks an utterance boundary found while scanning samples
type VADEvent int

const (
	SpeechStarted VADEvent = iota + 1
	SpeechEnded
)

// VADDetector tracks speech and silence across successive windows. Input of
// any length is accepted; samples that do not fill a window are carried over.
type VADDetector struct {
	config         *VADConfig
	carry          []int16
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new detector, using defaults when config is nil
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.WindowSize < 1 {
		config.WindowSize = 1
	}
	return &VADDetector{config: config}
}

// Process scans samples window by window and returns the boundaries crossed
func (v *VADDetector) Process(samples []int16) []VADEvent {
	var events []VADEvent

	v.carry = append(v.carry, samples...)
	size := v.config.WindowSize
	for len(v.carry) >= size {
		if ev, ok := v.processWindow(v.carry[:size]); ok {
			events = append(events, ev)
		}
		n := copy(v.carry, v.carry[size:])
		v.carry = v.carry[:n]
	}

	return events
}

func (v *VADDetector) processWindow(window []int16) (VADEvent, bool) {
	if CalculateRMS(window) > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.isSpeaking {
			v.isSpeaking = true
			return SpeechStarted, true
		}
		return 0, false
	}

	v.silenceCounter++
	if v.isSpeaking && v.silenceCounter >= v.config.SilenceWindows {
		v.isSpeaking = false
		v.silenceCounter = 0
		return SpeechEnded, true
	}
	return 0, false
}

// Reset clears speech state and any carried samples
func (v *VADDetector) Reset() {
	v.carry = v.carry[:0]
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}
