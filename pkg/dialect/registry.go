package dialect

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"mavrelay/pkg/frame"
)

// ErrUndefined means a message value has no registered wire mapping in a
// Registry — the dialect equivalent of spec's ProtocolUndefined.
var ErrUndefined = errors.New("message not defined in dialect")

type registeredType struct {
	goType            reflect.Type
	crcExtra          uint8
	size              int
	targetSystemIdx   int
	targetComponentIdx int
}

// Registry is a reflect-backed Dialect: message structs are registered
// once at startup, then decoded/encoded via encoding/binary the same way
// the teacher's pkg/protocol/registry.go turns a payload into a Go value
// by reflecting over little-endian struct fields. Target derivation reads
// struct tags `mavlink:"target_system"` / `mavlink:"target_component"`
// instead of requiring a hand-written Target() method per message.
type Registry struct {
	mu     sync.RWMutex
	name   string
	byID   map[uint32]registeredType
	byName map[string]uint32
	byType map[reflect.Type]uint32
}

// NewRegistry returns an empty registry identified by name.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:   name,
		byID:   make(map[uint32]registeredType),
		byName: make(map[string]uint32),
		byType: make(map[reflect.Type]uint32),
	}
}

// Register adds msgID -> sample's type to the registry. sample must be a
// struct (or pointer to one) composed entirely of fixed-size numeric
// fields and fixed-size arrays thereof, the set encoding/binary can
// marshal. Panics on an unsupported type: this is a startup-time wiring
// error, not a runtime condition callers need to recover from.
func (r *Registry) Register(msgID uint32, crcExtra uint8, sample any) {
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	size := binary.Size(reflect.New(t).Elem().Interface())
	if size < 0 {
		panic(fmt.Sprintf("dialect %s: unsupported type for message 0x%x: %s", r.name, msgID, t))
	}

	rt := registeredType{goType: t, crcExtra: crcExtra, size: size, targetSystemIdx: -1, targetComponentIdx: -1}
	for i := 0; i < t.NumField(); i++ {
		switch t.Field(i).Tag.Get("mavlink") {
		case "target_system":
			rt.targetSystemIdx = i
		case "target_component":
			rt.targetComponentIdx = i
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[msgID] = rt
	r.byName[t.Name()] = msgID
	r.byType[t] = msgID
}

func (r *Registry) Name() string { return r.name }

func (r *Registry) CRCExtra(msgID uint32) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byID[msgID]
	if !ok {
		return 0, false
	}
	return rt.crcExtra, true
}

func (r *Registry) PayloadLength(msgID uint32) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byID[msgID]
	if !ok {
		return 0, false
	}
	return uint8(rt.size), true
}

func (r *Registry) Decode(msgID uint32, payload []byte) (any, frame.Target, bool) {
	r.mu.RLock()
	rt, ok := r.byID[msgID]
	r.mu.RUnlock()
	if !ok {
		return nil, frame.Target{}, false
	}

	padded := payload
	switch {
	case len(padded) < rt.size:
		padded = make([]byte, rt.size)
		copy(padded, payload)
	case len(padded) > rt.size:
		padded = padded[:rt.size]
	}

	val := reflect.New(rt.goType)
	if err := binary.Read(bytes.NewReader(padded), binary.LittleEndian, val.Interface()); err != nil {
		return nil, frame.Target{}, false
	}

	msg := val.Elem().Interface()
	return msg, targetFromValue(rt, val.Elem()), true
}

func (r *Registry) Encode(msg any, version frame.Version) (uint32, []byte, uint8, frame.Target, error) {
	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	msgID, ok := r.byType[t]
	var rt registeredType
	if ok {
		rt = r.byID[msgID]
	}
	r.mu.RUnlock()
	if !ok {
		return 0, nil, 0, frame.Target{}, fmt.Errorf("dialect %s: %s: %w", r.name, t, ErrUndefined)
	}

	buf := &bytes.Buffer{}
	buf.Grow(rt.size)
	if err := binary.Write(buf, binary.LittleEndian, msg); err != nil {
		return 0, nil, 0, frame.Target{}, fmt.Errorf("dialect %s: encode %s: %w", r.name, t, err)
	}

	payload := buf.Bytes()
	if version == frame.V2 {
		payload = truncateTrailingZeros(payload)
	}

	target := targetFromValue(rt, reflect.ValueOf(msg))
	return msgID, payload, rt.crcExtra, target, nil
}

func (r *Registry) Lookup(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

func (r *Registry) TypeName(msg any) (string, bool) {
	t := reflect.TypeOf(msg)
	if t == nil {
		return "", false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byType[t]; ok {
		return t.Name(), true
	}
	return "", false
}

func targetFromValue(rt registeredType, v reflect.Value) frame.Target {
	hasSystem := rt.targetSystemIdx >= 0
	hasComponent := rt.targetComponentIdx >= 0
	if !hasSystem && !hasComponent {
		return frame.Target{Kind: frame.Broadcast}
	}

	var sys, comp uint8
	if hasSystem {
		sys = uint8(v.Field(rt.targetSystemIdx).Uint())
	}
	if hasComponent {
		comp = uint8(v.Field(rt.targetComponentIdx).Uint())
		return frame.Target{Kind: frame.Component, System: sys, Component: comp}
	}
	return frame.Target{Kind: frame.System, System: sys}
}

// truncateTrailingZeros drops trailing zero bytes, the v2 truncation the
// spec allows on send; receivers zero-extend back to the declared length.
func truncateTrailingZeros(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
