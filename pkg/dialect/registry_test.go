package dialect_test

import (
	"errors"
	"testing"

	"mavrelay/pkg/dialect"
	"mavrelay/pkg/frame"
)

func TestCommonHeartbeatCRCExtra(t *testing.T) {
	d := dialect.NewCommon()
	extra, ok := d.CRCExtra(dialect.HeartbeatID)
	if !ok {
		t.Fatalf("expected HEARTBEAT to be known")
	}
	if extra != 50 {
		t.Fatalf("unexpected crc_extra: got %d want 50", extra)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := dialect.NewCommon()
	in := dialect.Heartbeat{Type: 1, Autopilot: 3, BaseMode: 0x81, SystemStatus: 4, MavlinkVersion: 3}

	msgID, payload, crcExtra, target, err := d.Encode(in, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msgID != dialect.HeartbeatID {
		t.Fatalf("unexpected msg id: %d", msgID)
	}
	if crcExtra != 50 {
		t.Fatalf("unexpected crc extra: %d", crcExtra)
	}
	if target.Kind != frame.Broadcast {
		t.Fatalf("expected broadcast target, got %v", target.Kind)
	}

	out, gotTarget, ok := d.Decode(msgID, payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if gotTarget.Kind != frame.Broadcast {
		t.Fatalf("decode target mismatch: %v", gotTarget.Kind)
	}
	got, ok := out.(dialect.Heartbeat)
	if !ok {
		t.Fatalf("unexpected decoded type: %T", out)
	}
	if got != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, in)
	}
}

func TestDecodeZeroExtendsTruncatedV2Payload(t *testing.T) {
	d := dialect.NewCommon()
	full := dialect.Heartbeat{Type: 6}
	_, payload, _, _, err := d.Encode(full, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Heartbeat's trailing fields are all zero here, so v2 truncation
	// should have dropped bytes from the tail.
	length, _ := d.PayloadLength(dialect.HeartbeatID)
	if len(payload) >= int(length) {
		t.Fatalf("expected truncated payload, got len %d (declared %d)", len(payload), length)
	}

	out, _, ok := d.Decode(dialect.HeartbeatID, payload)
	if !ok {
		t.Fatalf("decode of truncated payload failed")
	}
	if out.(dialect.Heartbeat) != full {
		t.Fatalf("zero-extended decode mismatch: got %+v want %+v", out, full)
	}
}

func TestCommandLongTargetsComponent(t *testing.T) {
	d := dialect.NewCommon()
	cmd := dialect.CommandLong{TargetSystem: 1, TargetComponent: 1, Command: 400}
	_, payload, crcExtra, target, err := d.Encode(cmd, frame.V2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if crcExtra != 152 {
		t.Fatalf("unexpected crc extra: %d", crcExtra)
	}
	if target.Kind != frame.Component || target.System != 1 || target.Component != 1 {
		t.Fatalf("unexpected target: %+v", target)
	}

	out, decodedTarget, ok := d.Decode(dialect.CommandLongID, payload)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decodedTarget != target {
		t.Fatalf("target mismatch after decode: %+v != %+v", decodedTarget, target)
	}
	if out.(dialect.CommandLong).Command != 400 {
		t.Fatalf("unexpected decoded command: %+v", out)
	}
}

func TestEncodeUnknownMessageIsUndefined(t *testing.T) {
	d := dialect.NewCommon()
	type notRegistered struct{ X uint8 }
	_, _, _, _, err := d.Encode(notRegistered{}, frame.V2)
	if !errors.Is(err, dialect.ErrUndefined) {
		t.Fatalf("expected ErrUndefined for unregistered message type, got %v", err)
	}
}

func TestLookupAndTypeNameRoundTrip(t *testing.T) {
	d := dialect.NewCommon()
	id, ok := d.Lookup("Heartbeat")
	if !ok || id != dialect.HeartbeatID {
		t.Fatalf("lookup failed: id=%d ok=%v", id, ok)
	}
	name, ok := d.TypeName(dialect.Heartbeat{})
	if !ok || name != "Heartbeat" {
		t.Fatalf("type name failed: name=%q ok=%v", name, ok)
	}
}

func TestDecodeUnknownMessageID(t *testing.T) {
	d := dialect.NewCommon()
	if _, _, ok := d.Decode(0xFFFF, []byte{1, 2, 3}); ok {
		t.Fatalf("expected unknown message id to fail decode")
	}
	if _, ok := d.CRCExtra(0xFFFF); ok {
		t.Fatalf("expected unknown message id to have no crc_extra")
	}
}
