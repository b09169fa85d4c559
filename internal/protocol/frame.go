// Package protocol implements the binary audio frame format sent by clients.
//
// Layout, big-endian:
//
//	[Version:1][Encoding:1][Sequence:8][SessionIDLen:2][SessionID:N][Payload:...]
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/lexiqai/conversation-pipeline/internal/audio"
)

// Version is the only frame version understood by this server
const Version byte = 1

// HeaderSize is the fixed part of a frame preceding the session id
const HeaderSize = 1 + 1 + 8 + 2

// Encoding identifies the payload format
type Encoding byte

const (
	EncodingPCM16LE Encoding = 0x01
	EncodingMulaw   Encoding = 0x02
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM16LE:
		return "pcm16le"
	case EncodingMulaw:
		return "mulaw"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(e))
	}
}

var (
	ErrShortFrame         = errors.New("frame too short")
	ErrUnsupportedVersion = errors.New("unsupported frame version")
	ErrUnknownEncoding    = errors.New("unknown payload encoding")
	ErrSessionIDTooLong   = errors.New("session id too long")
)

// Frame is one decoded client message
type Frame struct {
	Encoding  Encoding
	Sequence  uint64
	SessionID string
	Payload   []byte
}

// EncodeFrame serializes a frame
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.SessionID) > math.MaxUint16 {
		return nil, ErrSessionIDTooLong
	}
	if f.Encoding != EncodingPCM16LE && f.Encoding != EncodingMulaw {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownEncoding, byte(f.Encoding))
	}

	buf := make([]byte, HeaderSize+len(f.SessionID)+len(f.Payload))
	buf[0] = Version
	buf[1] = byte(f.Encoding)
	binary.BigEndian.PutUint64(buf[2:10], f.Sequence)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(f.SessionID)))
	n := copy(buf[HeaderSize:], f.SessionID)
	copy(buf[HeaderSize+n:], f.Payload)

	return buf, nil
}

// DecodeFrame parses a frame. The returned payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: need %d header bytes, got %d", ErrShortFrame, HeaderSize, len(data))
	}
	if data[0] != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	enc := Encoding(data[1])
	if enc != EncodingPCM16LE && enc != EncodingMulaw {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownEncoding, data[1])
	}

	seq := binary.BigEndian.Uint64(data[2:10])
	idLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) < HeaderSize+idLen {
		return Frame{}, fmt.Errorf("%w: session id needs %d bytes, got %d", ErrShortFrame, idLen, len(data)-HeaderSize)
	}

	return Frame{
		Encoding:  enc,
		Sequence:  seq,
		SessionID: string(data[HeaderSize : HeaderSize+idLen]),
		Payload:   data[HeaderSize+idLen:],
	}, nil
}

// PCM returns the payload as PCM16LE, decoding μ-law when needed
func (f Frame) PCM() ([]byte, error) {
	switch f.Encoding {
	case EncodingPCM16LE:
		return f.Payload, nil
	case EncodingMulaw:
		if len(f.Payload) == 0 {
			return nil, nil
		}
		return audio.DecodeMulaw(f.Payload)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownEncoding, byte(f.Encoding))
	}
}
