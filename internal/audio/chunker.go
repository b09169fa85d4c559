package audio

import "time"

// AudioFrame is a fixed-length block of PCM16 samples tagged with its
// position in the session's frame sequence
type AudioFrame struct {
	SessionID string
	Sequence  uint64
	Samples   []int16
}

// Bytes returns the frame payload as little-endian PCM16
func (f AudioFrame) Bytes() []byte {
	return PCM16ToBytes(f.Samples)
}

// FrameSamplesFor returns the number of samples in one frame of the given
// duration at the given sample rate. It never returns less than one.
func FrameSamplesFor(sampleRate int, frameDuration time.Duration) int {
	n := int(int64(sampleRate) * int64(frameDuration) / int64(time.Second))
	if n < 1 {
		return 1
	}
	return n
}

// FrameChunker turns arbitrarily sized blocks of float samples into fixed
// size PCM16 frames. It is not safe for concurrent use; it is meant to live
// on the capture goroutine.
type FrameChunker struct {
	sessionID    string
	frameSamples int
	emit         func(AudioFrame)

	pending  []int16
	sequence uint64
}

// NewFrameChunker creates a chunker emitting frames of frameSamples samples
func NewFrameChunker(sessionID string, frameSamples int, emit func(AudioFrame)) *FrameChunker {
	if frameSamples < 1 {
		frameSamples = 1
	}
	return &FrameChunker{
		sessionID:    sessionID,
		frameSamples: frameSamples,
		emit:         emit,
		pending:      make([]int16, 0, frameSamples*2),
	}
}

// Push queues a block and emits every complete frame now available.
// Samples that do not yet fill a frame stay queued for the next call.
func (c *FrameChunker) Push(block []float32) {
	if len(block) == 0 {
		return
	}

	c.pending = append(c.pending, Float32SliceToPCM16(block)...)

	for len(c.pending) >= c.frameSamples {
		frame := make([]int16, c.frameSamples)
		copy(frame, c.pending[:c.frameSamples])

		// shift the remainder down instead of reslicing so the backing
		// array does not grow without bound on long captures
		n := copy(c.pending, c.pending[c.frameSamples:])
		c.pending = c.pending[:n]

		seq := c.sequence
		c.sequence++
		if c.emit != nil {
			c.emit(AudioFrame{SessionID: c.sessionID, Sequence: seq, Samples: frame})
		}
	}
}

// Pending returns the number of queued samples that do not yet fill a frame
func (c *FrameChunker) Pending() int {
	return len(c.pending)
}

// FrameSamples returns the configured frame size
func (c *FrameChunker) FrameSamples() int {
	return c.frameSamples
}

// NextSequence returns the sequence number the next frame will carry
func (c *FrameChunker) NextSequence() uint64 {
	return c.sequence
}
