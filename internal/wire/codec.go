package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout: a fixed-width header followed by filler bytes up to the
// configured payload size. Responses echo the frame unchanged, so the
// header alone is enough to pair a response with its request.
const (
	// Magic marks a frame produced by this codec. The server rejects
	// frames that do not carry it.
	Magic uint32 = 0x4e505246 // "NPRF"

	// HeaderSize is magic (4) + client id (4) + sequence (8).
	HeaderSize = 16
)

var (
	ErrPayloadTooSmall = errors.New("payload size smaller than frame header")
	ErrBadFrame        = errors.New("malformed frame")
)

// Header is the decoded fixed-width prefix of a frame.
type Header struct {
	ClientID uint32
	Sequence uint64
}

// Codec builds and parses fixed-size frames. It carries no state beyond
// the frame size and is safe for concurrent use.
type Codec struct {
	payloadSize int
}

func NewCodec(payloadSize int) (*Codec, error) {
	if payloadSize < HeaderSize {
		return nil, fmt.Errorf("payload size %d, need at least %d: %w",
			payloadSize, HeaderSize, ErrPayloadTooSmall)
	}
	return &Codec{payloadSize: payloadSize}, nil
}

func (c *Codec) PayloadSize() int {
	return c.payloadSize
}

// Encode produces a frame of exactly PayloadSize bytes embedding the
// client id and sequence number. Filler content is deterministic so a
// frame can be rebuilt for comparison in tests.
func (c *Codec) Encode(clientID uint32, seq uint64) []byte {
	frame := make([]byte, c.payloadSize)
	binary.BigEndian.PutUint32(frame[0:4], Magic)
	binary.BigEndian.PutUint32(frame[4:8], clientID)
	binary.BigEndian.PutUint64(frame[8:16], seq)
	for i := HeaderSize; i < len(frame); i++ {
		frame[i] = byte(i)
	}
	return frame
}

// Decode extracts the header from a frame. Filler content is ignored,
// so a response matches regardless of what the far side did with the
// body, as long as the header survived intact.
func (c *Codec) Decode(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("frame of %d bytes: %w", len(frame), ErrBadFrame)
	}
	if got := binary.BigEndian.Uint32(frame[0:4]); got != Magic {
		return Header{}, fmt.Errorf("bad magic %#x: %w", got, ErrBadFrame)
	}
	return Header{
		ClientID: binary.BigEndian.Uint32(frame[4:8]),
		Sequence: binary.BigEndian.Uint64(frame[8:16]),
	}, nil
}
