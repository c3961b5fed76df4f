// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// controlRequest is shaped like a control socket request.
type controlRequest struct {
	Action string `cbor:"action"`
	Event  string `cbor:"event,omitempty"`
	Period int    `cbor:"period"`
}

// spaceEntry uses json tags, like control payloads the CLI prints.
type spaceEntry struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Tiles int    `json:"tiles"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := controlRequest{Action: "set-filters", Event: "gc end", Period: 3}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded controlRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"action": "status", "verbose": true, "limit": 10}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 5 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	requests := []controlRequest{
		{Action: "pause"},
		{Action: "set-filters", Event: "gc start", Period: 2},
		{Action: "restart"},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range requests {
		var got controlRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode request %d: %v", i, err)
		}
		if got != want {
			t.Errorf("request %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := spaceEntry{ID: 1, Name: "large objects", Tiles: 64}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var generic map[string]any
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if generic["name"] != "large objects" {
		t.Errorf("json tag names not used as CBOR keys: %v", generic)
	}

	var decoded spaceEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalAnyYieldsStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"space": map[string]any{"name": "heap"}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := outer["space"].(map[string]any); !ok {
		t.Errorf("nested value is %T, want map[string]any", outer["space"])
	}
}

func TestOmitemptyRespected(t *testing.T) {
	with, err := Marshal(controlRequest{Action: "a", Event: "gc"})
	if err != nil {
		t.Fatal(err)
	}
	without, err := Marshal(controlRequest{Action: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(without) >= len(with) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes", len(without), len(with))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var request controlRequest
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &request); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"action"`) || !strings.Contains(notation, `"status"`) {
		t.Errorf("notation %q missing request fields", notation)
	}
}

func BenchmarkMarshal(b *testing.B) {
	request := controlRequest{Action: "set-filters", Event: "gc end", Period: 3}
	b.ReportAllocs()
	for b.Loop() {
		_, _ = Marshal(request)
	}
}
