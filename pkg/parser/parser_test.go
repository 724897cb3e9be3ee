package parser_test

import (
	"errors"
	"testing"

	"mavrelay/pkg/dialect"
	"mavrelay/pkg/frame"
	"mavrelay/pkg/parser"
)

// buildV2 hand-assembles a raw MAVLink v2 frame (no signature) the way a
// real sender would put it on the wire, so tests can drive Parser.Feed
// byte by byte without depending on a wire-writer component.
func buildV2(t *testing.T, seq, sys, comp uint8, msgID uint32, payload []byte, crcExtra uint8) []byte {
	t.Helper()
	buf := []byte{0xFD, byte(len(payload)), 0, 0, seq, sys, comp,
		byte(msgID), byte(msgID >> 8), byte(msgID >> 16)}
	buf = append(buf, payload...)

	crc := crc16Compute(buf[1:], crcExtra)
	buf = append(buf, byte(crc), byte(crc>>8))
	return buf
}

// crc16Compute mirrors pkg/crc16's algorithm independently so the test
// isn't just checking the parser against the same code it relies on.
func crc16Compute(data []byte, crcExtra byte) uint16 {
	crc := uint16(0xFFFF)
	accumulate := func(b byte) {
		tmp := b ^ byte(crc&0xFF)
		tmp ^= tmp << 4
		crc = (crc >> 8) ^ uint16(tmp)<<8 ^ uint16(tmp)<<3 ^ uint16(tmp)>>4
	}
	for _, b := range data {
		accumulate(b)
	}
	accumulate(crcExtra)
	return crc
}

func feedAll(p *parser.Parser, d dialect.Dialect, data []byte) ([]frame.Frame, []error) {
	var frames []frame.Frame
	var errs []error
	for _, b := range data {
		f, ok, err := p.Feed(b, d)
		if ok {
			frames = append(frames, f)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return frames, errs
}

func TestRandomBytesProduceNoFrames(t *testing.T) {
	p := parser.New()
	d := dialect.NewCommon()
	junk := []byte{0x01, 0x02, 0x10, 0x20, 0x7F, 0x99, 0xAA, 0x00}

	frames, errs := feedAll(p, d, junk)
	if len(frames) != 0 {
		t.Fatalf("expected no frames from junk, got %d", len(frames))
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors from junk, got %v", errs)
	}
	if !p.Idle() {
		t.Fatalf("parser should remain idle after non-frame bytes")
	}
}

func TestValidV2HeartbeatRoundTrip(t *testing.T) {
	d := dialect.NewCommon()
	hb := dialect.Heartbeat{Type: 2, Autopilot: 3, BaseMode: 0x81, SystemStatus: 4, MavlinkVersion: 3}
	msgID, payload, crcExtra, _, err := d.Encode(hb, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	raw := buildV2(t, 7, 1, 1, msgID, payload, crcExtra)
	p := parser.New()
	frames, errs := feedAll(p, d, raw)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}
	got := frames[0]
	if got.MessageID != dialect.HeartbeatID || got.SourceSystem != 1 || got.SourceComponent != 1 {
		t.Fatalf("unexpected frame header: %+v", got)
	}
	msg, ok := got.Message.(dialect.Heartbeat)
	if !ok {
		t.Fatalf("unexpected message type: %T", got.Message)
	}
	if msg != hb {
		t.Fatalf("round trip mismatch: got %+v want %+v", msg, hb)
	}
	if !p.Idle() {
		t.Fatalf("parser should return to idle after a complete frame")
	}
}

func TestV2ZeroLengthPayloadParses(t *testing.T) {
	d := dialect.NewCommon()
	msgID, payload, crcExtra, _, err := d.Encode(dialect.Heartbeat{}, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(payload) != 0 {
		t.Fatalf("expected all-zero heartbeat to truncate to zero length, got %d", len(payload))
	}

	raw := buildV2(t, 0, 9, 1, msgID, payload, crcExtra)
	p := parser.New()
	frames, errs := feedAll(p, d, raw)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one frame from zero-length payload, got %d", len(frames))
	}
	if frames[0].Message.(dialect.Heartbeat) != (dialect.Heartbeat{}) {
		t.Fatalf("unexpected decode: %+v", frames[0].Message)
	}
}

func TestChecksumCorruptionDropsAndResyncsToNextFrame(t *testing.T) {
	d := dialect.NewCommon()
	msgID, payload, crcExtra, _, err := d.Encode(dialect.Heartbeat{Type: 1, MavlinkVersion: 3}, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	bad := buildV2(t, 1, 1, 1, msgID, payload, crcExtra)
	bad[len(bad)-1] ^= 0xFF // corrupt checksum high byte

	good := buildV2(t, 2, 1, 1, msgID, payload, crcExtra)

	p := parser.New()
	frames, errs := feedAll(p, d, append(bad, good...))

	if len(errs) != 1 || !errors.Is(errs[0], parser.ErrChecksumFail) {
		t.Fatalf("expected exactly one ErrChecksumFail, got %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected the second, valid frame to still parse, got %d frames", len(frames))
	}
	if frames[0].Sequence != 2 {
		t.Fatalf("unexpected surviving frame sequence: %d", frames[0].Sequence)
	}
}

func TestUnknownMessageIDDropsAndResyncsToNextFrame(t *testing.T) {
	d := dialect.NewCommon()

	// A message id with no registered crc_extra: any checksum is
	// meaningless, so the parser must drop it without verifying.
	unknown := buildV2(t, 1, 1, 1, 0xBEEF, []byte{1, 2, 3, 4}, 0)

	msgID, payload, crcExtra, _, err := d.Encode(dialect.Heartbeat{Type: 5}, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	good := buildV2(t, 2, 1, 1, msgID, payload, crcExtra)

	p := parser.New()
	frames, errs := feedAll(p, d, append(unknown, good...))

	if len(errs) != 1 || !errors.Is(errs[0], parser.ErrUnknownMsgID) {
		t.Fatalf("expected exactly one ErrUnknownMsgID, got %v", errs)
	}
	if len(frames) != 1 || frames[0].Sequence != 2 {
		t.Fatalf("expected the second, valid frame to parse, got %+v", frames)
	}
}

func TestSignedV2FrameForwardsOpaquely(t *testing.T) {
	d := dialect.NewCommon()
	msgID, payload, crcExtra, _, err := d.Encode(dialect.Heartbeat{Type: 1}, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	raw := []byte{0xFD, byte(len(payload)), 0x01, 0, 3, 1, 1,
		byte(msgID), byte(msgID >> 8), byte(msgID >> 16)}
	raw = append(raw, payload...)
	crc := crc16Compute(raw[1:], crcExtra)
	raw = append(raw, byte(crc), byte(crc>>8))
	raw = append(raw, make([]byte, 13)...) // signature trailer, content irrelevant here

	p := parser.New()
	frames, errs := feedAll(p, d, raw)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	f := frames[0]
	if !f.Signed {
		t.Fatalf("expected frame to be marked signed")
	}
	if f.Message != nil {
		t.Fatalf("expected opaque forwarding: message should not be decoded, got %T", f.Message)
	}
	if f.Target.Kind != frame.Broadcast {
		t.Fatalf("expected opaque signed frame to fall back to broadcast target, got %v", f.Target.Kind)
	}
	if string(f.Raw) != string(raw) {
		t.Fatalf("expected Raw to capture the exact wire bytes including the signature trailer")
	}
	if remarshaled := frame.Marshal(f); string(remarshaled) != string(raw) {
		t.Fatalf("expected Marshal to re-emit a signed frame's original bytes unchanged")
	}
}

func TestV1FrameParses(t *testing.T) {
	d := dialect.NewCommon()
	msgID, payload, crcExtra, _, err := d.Encode(dialect.Heartbeat{Type: 4, MavlinkVersion: 3}, frame.V1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	buf := []byte{0xFE, byte(len(payload)), 5, 1, 1, byte(msgID)}
	buf = append(buf, payload...)
	crc := crc16Compute(buf[1:], crcExtra)
	buf = append(buf, byte(crc), byte(crc>>8))

	p := parser.New()
	frames, errs := feedAll(p, d, buf)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one v1 frame, got %d", len(frames))
	}
	if frames[0].Version != frame.V1 {
		t.Fatalf("expected version 1, got %v", frames[0].Version)
	}
}
