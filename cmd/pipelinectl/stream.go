package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lexiqai/conversation-pipeline/internal/audio"
	"github.com/lexiqai/conversation-pipeline/internal/gateway"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/protocol"
	"github.com/lexiqai/conversation-pipeline/internal/resilience"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream raw float32 audio to a recognition session and print transcripts",
	Long: `Reads little-endian float32 mono samples from a file (or stdin with "-"),
cuts them into fixed-duration frames and sends them over the session's audio
websocket. Recognition events are printed as they arrive.`,
	RunE: runStream,
}

func init() {
	f := streamCmd.Flags()
	f.String("server", "ws://localhost:8080", "Pipeline base URL")
	f.StringP("session", "s", "", "Session id (required)")
	f.StringP("file", "f", "-", "Input file of float32 LE samples, - for stdin")
	f.String("participant", "", "Participant name attached to transcripts")
	f.Int("sample-rate", 16000, "Sample rate of the input in Hz")
	f.Duration("frame", 500*time.Millisecond, "Frame duration")
	f.String("encoding", protocol.EncodingPCM16LE.String(), "Wire encoding: pcm16le or mulaw")
	f.Int("block", 2048, "Largest block of samples read at a time")
	f.Bool("realtime", false, "Pace frames at their playback duration")
	f.Duration("wait", 3*time.Second, "How long to wait for trailing transcripts")
	streamCmd.MarkFlagRequired("session")
}

func runStream(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	server, _ := f.GetString("server")
	sessionID, _ := f.GetString("session")
	path, _ := f.GetString("file")
	participant, _ := f.GetString("participant")
	sampleRate, _ := f.GetInt("sample-rate")
	frameDur, _ := f.GetDuration("frame")
	encodingName, _ := f.GetString("encoding")
	block, _ := f.GetInt("block")
	realtime, _ := f.GetBool("realtime")
	wait, _ := f.GetDuration("wait")

	encoding, err := parseEncoding(encodingName)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		in = file
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dialAudio(ctx, server, sessionID, participant)
	if err != nil {
		return err
	}
	defer conn.Close()

	received := make(chan struct{})
	go func() {
		defer close(received)
		printTranscripts(cmd.OutOrStdout(), conn)
	}()

	var sendErr error
	chunker := audio.NewFrameChunker(sessionID, audio.FrameSamplesFor(sampleRate, frameDur), func(frame audio.AudioFrame) {
		if sendErr != nil {
			return
		}
		data, err := encodeFrame(frame, encoding, sampleRate)
		if err == nil {
			err = conn.WriteMessage(websocket.BinaryMessage, data)
		}
		if err != nil {
			sendErr = fmt.Errorf("send frame %d: %w", frame.Sequence, err)
			return
		}
		if realtime {
			time.Sleep(frameDur)
		}
	})

	blocks := newBlockSizer(block)
	for sendErr == nil && ctx.Err() == nil {
		samples, err := readSamples(in, blocks.next())
		chunker.Push(samples)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if sendErr != nil {
		return sendErr
	}

	logger := observability.WithSession(sessionID)
	logger.Info().
		Uint64("frames", chunker.NextSequence()).
		Int("unsent_samples", chunker.Pending()).
		Msg("Input exhausted")

	select {
	case <-received:
		return nil
	case <-time.After(wait):
	case <-ctx.Done():
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
	select {
	case <-received:
	case <-time.After(time.Second):
	}
	return nil
}

func parseEncoding(name string) (protocol.Encoding, error) {
	switch strings.ToLower(name) {
	case protocol.EncodingPCM16LE.String():
		return protocol.EncodingPCM16LE, nil
	case protocol.EncodingMulaw.String():
		return protocol.EncodingMulaw, nil
	default:
		return 0, fmt.Errorf("unsupported encoding %q", name)
	}
}

func dialAudio(ctx context.Context, server, sessionID, participant string) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	u.Path += "/v1/sessions/" + url.PathEscape(sessionID) + "/audio"
	if participant != "" {
		u.RawQuery = url.Values{"participant_name": {participant}}.Encode()
	}

	var conn *websocket.Conn
	err = resilience.Reconnect(ctx, func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, resilience.DefaultReconnectConfig())
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func encodeFrame(frame audio.AudioFrame, encoding protocol.Encoding, sampleRate int) ([]byte, error) {
	payload := frame.Bytes()
	if encoding == protocol.EncodingMulaw {
		var err error
		if payload, err = audio.EncodeMulaw(frame.Samples, sampleRate, sampleRate); err != nil {
			return nil, err
		}
	}
	return protocol.EncodeFrame(protocol.Frame{
		Encoding:  encoding,
		Sequence:  frame.Sequence,
		SessionID: frame.SessionID,
		Payload:   payload,
	})
}

func printTranscripts(w io.Writer, conn *websocket.Conn) {
	for {
		var msg gateway.TranscriptMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch {
		case msg.Error != "":
			fmt.Fprintf(w, "[%s] %s\n", msg.Type, msg.Error)
		case msg.Text != "":
			fmt.Fprintf(w, "[%s] %s (%.2f)\n", msg.Type, msg.Text, msg.Confidence)
		default:
			fmt.Fprintf(w, "[%s]\n", msg.Type)
		}
	}
}

// readSamples reads up to n float32 LE samples. A trailing partial sample
// is discarded. It returns io.EOF once the input is exhausted.
func readSamples(r io.Reader, n int) ([]float32, error) {
	buf := make([]byte, n*4)
	read, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	samples := make([]float32, read/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return samples, err
}

// blockSizer yields irregular block sizes, the way capture callbacks
// deliver audio
type blockSizer struct {
	max int
	rng *rand.Rand
}

func newBlockSizer(max int) *blockSizer {
	if max < 1 {
		max = 1
	}
	return &blockSizer{max: max, rng: rand.New(rand.NewPCG(1, 2))}
}

func (b *blockSizer) next() int {
	return 1 + b.rng.IntN(b.max)
}
