package rconpacket

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   int32
		kind Kind
		body string
	}{
		{"auth", 42, Auth, "hunter2"},
		{"exec command", 1, ExecCommand, "status"},
		{"response value", 1, ResponseValue, "hostname: X\n"},
		{"empty body", SentinelID, ResponseValue, ""},
		{"negative id", -1, AuthResponse, ""},
		{"unicode body", 7, ResponseValue, "players: 1/10 éèê"},
		{"embedded newlines", 7, ResponseValue, "line one\nline two\nline three"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := Encode(tt.id, tt.kind, tt.body)

			pkt, consumed, ok, err := Decode(wire)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if !ok {
				t.Fatal("Decode reported incomplete frame for a full one")
			}
			if consumed != len(wire) {
				t.Errorf("consumed = %d, want %d", consumed, len(wire))
			}
			if pkt.ID != tt.id {
				t.Errorf("ID = %d, want %d", pkt.ID, tt.id)
			}
			if pkt.Kind != tt.kind {
				t.Errorf("Kind = %d, want %d", pkt.Kind, tt.kind)
			}
			if pkt.Body != tt.body {
				t.Errorf("Body = %q, want %q", pkt.Body, tt.body)
			}
		})
	}
}

func TestDecodeIncompleteFrame(t *testing.T) {
	full := Encode(1, ExecCommand, "status")

	for n := 0; n < len(full); n++ {
		pkt, consumed, ok, err := Decode(full[:n])
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if ok {
			t.Fatalf("n=%d: Decode reported complete frame from %d/%d bytes", n, n, len(full))
		}
		if consumed != 0 {
			t.Errorf("n=%d: consumed = %d, want 0", n, consumed)
		}
		_ = pkt
	}
}

func TestDecodeOversizedSizeFieldIsIncomplete(t *testing.T) {
	// A declared size far larger than what's actually present must be
	// treated as "not enough bytes yet", never an error.
	buf := Encode(1, ExecCommand, "status")
	buf = buf[:len(buf)-3] // truncate, leaving the size field claiming more than we have

	_, consumed, ok, err := Decode(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete frame")
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	tests := []struct {
		name string
		size int32
	}{
		{"zero size", 0},
		{"size below minimum", 9},
		{"negative size", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 4)
			buf[0] = byte(tt.size)
			buf[1] = byte(tt.size >> 8)
			buf[2] = byte(tt.size >> 16)
			buf[3] = byte(tt.size >> 24)

			_, _, ok, err := Decode(buf)
			if err != ErrMalformedFrame {
				t.Fatalf("err = %v, want ErrMalformedFrame", err)
			}
			if ok {
				t.Fatal("expected ok=false on malformed frame")
			}
		})
	}
}

func TestDecodeFedOneByteAtATime(t *testing.T) {
	frames := [][]byte{
		Encode(1, ExecCommand, "status"),
		Encode(2, ResponseValue, "hostname: X\n"),
		Encode(SentinelID, ResponseValue, ""),
	}

	var all []byte
	for _, f := range frames {
		all = append(all, f...)
	}

	var decoded []Packet
	var buf []byte
	for _, b := range all {
		buf = append(buf, b)
		for {
			pkt, consumed, ok, err := Decode(buf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok {
				break
			}
			decoded = append(decoded, pkt)
			buf = buf[consumed:]
		}
	}

	if len(decoded) != len(frames) {
		t.Fatalf("decoded %d frames one byte at a time, want %d", len(decoded), len(frames))
	}
	for i, f := range frames {
		want, _, _, _ := Decode(f)
		if decoded[i] != want {
			t.Errorf("frame %d: got %+v, want %+v", i, decoded[i], want)
		}
	}

	// Feeding everything at once must yield the same decoded stream.
	var bulk []Packet
	rest := all
	for len(rest) > 0 {
		pkt, consumed, ok, err := Decode(rest)
		if err != nil || !ok {
			t.Fatalf("unexpected decode failure feeding all bytes at once: ok=%v err=%v", ok, err)
		}
		bulk = append(bulk, pkt)
		rest = rest[consumed:]
	}
	if !packetsEqual(bulk, decoded) {
		t.Errorf("bulk decode %v != incremental decode %v", bulk, decoded)
	}
}

func packetsEqual(a, b []Packet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEncodeSizeField(t *testing.T) {
	wire := Encode(1, ExecCommand, "abc")
	want := []byte{byte(10 + 3), 0, 0, 0}
	if !bytes.Equal(wire[:4], want) {
		t.Errorf("size field = %v, want %v", wire[:4], want)
	}
}
