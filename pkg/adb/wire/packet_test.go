package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := &Packet{Command: CmdWRTE, Arg0: 5, Arg1: 9, Payload: []byte("hello world")}

	var buf bytes.Buffer
	if err := WriteTo(&buf, p, true); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := ReadFrom(&buf, DefaultPayload, true)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got.Command != p.Command || got.Arg0 != p.Arg0 || got.Arg1 != p.Arg1 {
		t.Fatalf("header mismatch: %+v vs %+v", got, p)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("payload mismatch: %q vs %q", got.Payload, p.Payload)
	}
}

func TestMagicInvariant(t *testing.T) {
	for _, cmd := range []Command{CmdCNXN, CmdAUTH, CmdOPEN, CmdOKAY, CmdCLSE, CmdWRTE, CmdSYNC} {
		if uint32(cmd)^cmd.Magic() != 0xFFFFFFFF {
			t.Fatalf("magic invariant broken for %v", cmd)
		}
	}
}

func TestBadMagicRejected(t *testing.T) {
	p := &Packet{Command: CmdOKAY, Payload: nil}
	buf := Encode(p, false)
	buf[20] ^= 0xFF // corrupt magic

	_, err := ReadFrom(bytes.NewReader(buf), DefaultPayload, false)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestChecksumMismatchIsFatal(t *testing.T) {
	p := &Packet{Command: CmdWRTE, Arg0: 1, Arg1: 2, Payload: []byte("abc")}
	buf := Encode(p, true)
	buf[len(buf)-1] ^= 0xFF // corrupt last payload byte

	_, err := ReadFrom(bytes.NewReader(buf), DefaultPayload, true)
	if !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestPayloadTooLargeRejected(t *testing.T) {
	p := &Packet{Command: CmdWRTE, Payload: make([]byte, 10)}
	buf := Encode(p, false)

	_, err := ReadFrom(bytes.NewReader(buf), 4, false)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestChecksumRequiredByVersion(t *testing.T) {
	if ChecksumRequired(VersionSkipChecksum) {
		t.Fatalf("VersionSkipChecksum should not require checksum")
	}
	if !ChecksumRequired(VersionMin) {
		t.Fatalf("VersionMin should require checksum")
	}
}

func TestHeaderAndPayloadNotInterleaved(t *testing.T) {
	// simulate two consecutive packets written back to back: the reader must
	// consume exactly one packet's worth of bytes per ReadFrom call.
	var buf bytes.Buffer
	first := &Packet{Command: CmdOKAY, Arg0: 1, Arg1: 2}
	second := &Packet{Command: CmdCLSE, Arg0: 3, Arg1: 4}
	WriteTo(&buf, first, false)
	WriteTo(&buf, second, false)

	got1, err := ReadFrom(&buf, DefaultPayload, false)
	if err != nil {
		t.Fatalf("ReadFrom first: %v", err)
	}
	got2, err := ReadFrom(&buf, DefaultPayload, false)
	if err != nil {
		t.Fatalf("ReadFrom second: %v", err)
	}
	if got1.Command != CmdOKAY || got2.Command != CmdCLSE {
		t.Fatalf("packets read out of order: %v, %v", got1.Command, got2.Command)
	}
}
