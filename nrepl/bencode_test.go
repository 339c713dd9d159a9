package nrepl

import (
	"bufio"
	"bytes"
	"testing"
)

func decodeBytes(t *testing.T, b []byte) Dict {
	t.Helper()
	d, err := DecodeMessage(bufio.NewReader(bytes.NewReader(b)))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	return d
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := Dict{
		"op":      "eval",
		"id":      "42",
		"session": "abc",
		"count":   int64(3),
		"tests":   List{"a", "b"},
	}
	encoded := EncodeMessage(d)
	decoded := decodeBytes(t, encoded)

	if decoded["op"] != "eval" || decoded["id"] != "42" || decoded["session"] != "abc" {
		t.Fatalf("string fields mismatch: %#v", decoded)
	}
	if decoded["count"] != int64(3) {
		t.Fatalf("int field mismatch: %#v", decoded["count"])
	}
	l, ok := decoded["tests"].(List)
	if !ok || len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("list field mismatch: %#v", decoded["tests"])
	}
}

func TestEncodeKeysAreSorted(t *testing.T) {
	d := Dict{"zeta": "1", "alpha": "2"}
	encoded := string(EncodeMessage(d))
	if encoded != "d5:alpha1:24:zeta1:1e" {
		t.Fatalf("expected sorted-key encoding, got %q", encoded)
	}
}

func TestDecodeNestedDict(t *testing.T) {
	raw := []byte("d6:statusl4:donee7:versiond4:jank5:0.1.0ee")
	d := decodeBytes(t, raw)
	status, ok := d["status"].(List)
	if !ok || len(status) != 1 || status[0] != "done" {
		t.Fatalf("expected status list, got %#v", d["status"])
	}
	version, ok := d["version"].(Dict)
	if !ok || version["jank"] != "0.1.0" {
		t.Fatalf("expected nested dict, got %#v", d["version"])
	}
}

func TestDecodeMessageRejectsNonDict(t *testing.T) {
	_, err := DecodeMessage(bufio.NewReader(bytes.NewReader([]byte("i5e"))))
	if err == nil {
		t.Fatalf("expected error decoding a bare integer as a message")
	}
}

func TestDecodeStringExactLength(t *testing.T) {
	raw := []byte("d4:code9:(+ 1 2 3)e0:e")
	d := decodeBytes(t, raw)
	if d["code"] != "(+ 1 2 3)" {
		t.Fatalf("unexpected code field: %#v", d["code"])
	}
}

func TestEncodeStringListField(t *testing.T) {
	d := Dict{"middleware": []string{"a", "b"}}
	decoded := decodeBytes(t, EncodeMessage(d))
	l, ok := decoded["middleware"].(List)
	if !ok || len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("expected round-tripped string list, got %#v", decoded["middleware"])
	}
}
