package encoder

import (
	"bytes"
	"testing"
)

var (
	aud   = []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xf0}
	sps   = []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xc0, 0x1e}
	pps   = []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x3c, 0x80}
	idr   = []byte{0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0x33}
	slice = []byte{0x00, 0x00, 0x01, 0x41, 0x9a, 0x02, 0x04}
)

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestSplitterCutsAtAccessUnitDelimiters(t *testing.T) {
	key := join(aud, sps, pps, idr)
	p1 := join(aud, slice)
	p2 := join(aud, slice, slice)
	stream := join(key, p1, p2)

	var sp Splitter
	units := sp.Write(stream)

	if len(units) != 2 {
		t.Fatalf("got %d units, want 2 (last one stays buffered)", len(units))
	}
	if !bytes.Equal(units[0], key) {
		t.Errorf("unit 0 = % x, want % x", units[0], key)
	}
	if !bytes.Equal(units[1], p1) {
		t.Errorf("unit 1 = % x, want % x", units[1], p1)
	}
	if got := sp.Flush(); !bytes.Equal(got, p2) {
		t.Errorf("Flush() = % x, want % x", got, p2)
	}
	if sp.Buffered() != 0 {
		t.Errorf("Buffered() = %d after Flush, want 0", sp.Buffered())
	}
}

func TestSplitterByteAtATime(t *testing.T) {
	key := join(aud, sps, pps, idr)
	p1 := join(aud, slice)
	stream := join(key, p1, aud)

	var sp Splitter
	var units [][]byte
	for i := range stream {
		units = append(units, sp.Write(stream[i:i+1])...)
	}

	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if !bytes.Equal(units[0], key) || !bytes.Equal(units[1], p1) {
		t.Errorf("units = % x, want [% x] [% x]", units, key, p1)
	}
}

func TestSplitterThreeByteDelimiter(t *testing.T) {
	short := []byte{0x00, 0x00, 0x01, 0x09, 0xf0}
	first := join(short, slice)
	second := join(short, slice)

	var sp Splitter
	units := sp.Write(join(first, second, short))
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if !bytes.Equal(units[0], first) {
		t.Errorf("unit 0 = % x, want % x", units[0], first)
	}
}

func TestSplitterLeadingDelimiterDoesNotCut(t *testing.T) {
	var sp Splitter
	if units := sp.Write(join(aud, idr)); len(units) != 0 {
		t.Errorf("got %d units from a single access unit, want 0", len(units))
	}
}

func TestIsKeyFrame(t *testing.T) {
	tests := []struct {
		name string
		unit []byte
		want bool
	}{
		{"idr", join(aud, sps, pps, idr), true},
		{"non-idr", join(aud, slice), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		if got := IsKeyFrame(tt.unit); got != tt.want {
			t.Errorf("%s: IsKeyFrame() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
