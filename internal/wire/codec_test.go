package wire

import (
	"errors"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(1024)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	cases := []struct {
		clientID uint32
		seq      uint64
	}{
		{0, 0},
		{1, 1},
		{42, 99},
		{^uint32(0), ^uint64(0)},
	}
	for _, tc := range cases {
		frame := codec.Encode(tc.clientID, tc.seq)
		if len(frame) != 1024 {
			t.Fatalf("expected 1024 byte frame, got %d", len(frame))
		}
		hdr, err := codec.Decode(frame)
		if err != nil {
			t.Fatalf("decode seq %d: %v", tc.seq, err)
		}
		if hdr.ClientID != tc.clientID || hdr.Sequence != tc.seq {
			t.Fatalf("round trip mismatch: got %+v want client=%d seq=%d", hdr, tc.clientID, tc.seq)
		}
	}
}

func TestCodecMinimumFrame(t *testing.T) {
	codec, err := NewCodec(HeaderSize)
	if err != nil {
		t.Fatalf("new codec at header size: %v", err)
	}
	hdr, err := codec.Decode(codec.Encode(7, 13))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Sequence != 13 {
		t.Fatalf("expected seq 13 got %d", hdr.Sequence)
	}
}

func TestCodecRejectsSmallPayload(t *testing.T) {
	if _, err := NewCodec(HeaderSize - 1); !errors.Is(err, ErrPayloadTooSmall) {
		t.Fatalf("expected ErrPayloadTooSmall, got %v", err)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	codec, err := NewCodec(64)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	if _, err := codec.Decode([]byte{1, 2, 3}); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame for short frame, got %v", err)
	}

	frame := codec.Encode(1, 2)
	frame[0] ^= 0xff
	if _, err := codec.Decode(frame); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame for bad magic, got %v", err)
	}
}

func TestFillerIgnoredByDecode(t *testing.T) {
	codec, err := NewCodec(128)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	frame := codec.Encode(3, 21)
	for i := HeaderSize; i < len(frame); i++ {
		frame[i] = 0xaa
	}
	hdr, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Sequence != 21 {
		t.Fatalf("expected seq 21 got %d", hdr.Sequence)
	}
}
