// Package rconpacket encodes and decodes Source RCON protocol frames.
//
// Frame layout (all integers little-endian):
//
//	size: int32   // byte count of the rest of the frame
//	id:   int32
//	kind: int32
//	body: UTF-8 bytes
//	0x00          // body terminator
//	0x00          // packet terminator
//
// https://developer.valvesoftware.com/wiki/Source_RCON_Protocol
package rconpacket

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Kind identifies the purpose of a packet. Kind 2 is overloaded: it means
// SERVERDATA_AUTH_RESPONSE when sent by the server during auth, and
// SERVERDATA_EXECCOMMAND when sent by the client to run a command.
type Kind int32

const (
	Auth         Kind = 3
	AuthResponse Kind = 2
	ExecCommand  Kind = 2
	ResponseValue Kind = 0
)

// SentinelID is the reserved request id the binary client uses to detect
// the end of a multi-packet command response.
const SentinelID int32 = 9999

// headerSize is id(4) + type(4).
const headerSize = 8

// minBodylessSize is the minimum valid "size" field value: id(4) + type(4)
// + empty body terminator(1) + packet terminator(1).
const minBodylessSize = headerSize + 2

// ErrMalformedFrame is returned by Decode when the declared size field is
// smaller than the minimum viable body-less frame.
var ErrMalformedFrame = errors.New("rconpacket: malformed frame")

// Packet is a decoded Source RCON frame.
type Packet struct {
	ID   int32
	Kind Kind
	Body string
}

// Encode serializes id, kind, and body into a complete wire frame. Encode
// never fails: any int32 id/kind and any UTF-8 body produce a valid frame.
func Encode(id int32, kind Kind, body string) []byte {
	bodyBytes := []byte(body)
	size := int32(headerSize + len(bodyBytes) + 2)

	buf := make([]byte, 0, 4+int(size))
	out := bytes.NewBuffer(buf)

	binary.Write(out, binary.LittleEndian, size)
	binary.Write(out, binary.LittleEndian, id)
	binary.Write(out, binary.LittleEndian, int32(kind))
	out.Write(bodyBytes)
	out.WriteByte(0)
	out.WriteByte(0)

	return out.Bytes()
}

// Decode attempts to parse one complete frame from the head of buf.
//
// It returns ok == false (and a nil error) when buf does not yet contain a
// complete frame: the caller should wait for more bytes. It returns
// ErrMalformedFrame when the declared size field is smaller than the
// minimum viable frame; nothing is consumed in that case.
// On success, consumed is the number of bytes of buf the frame occupied.
func Decode(buf []byte) (pkt Packet, consumed int, ok bool, err error) {
	if len(buf) < 4 {
		return Packet{}, 0, false, nil
	}

	size := int32(binary.LittleEndian.Uint32(buf[:4]))
	if size < minBodylessSize {
		return Packet{}, 0, false, ErrMalformedFrame
	}

	total := 4 + int(size)
	if len(buf) < total {
		return Packet{}, 0, false, nil
	}

	body := buf[4:total]
	id := int32(binary.LittleEndian.Uint32(body[0:4]))
	kind := Kind(int32(binary.LittleEndian.Uint32(body[4:8])))

	// Everything after the 8-byte header, minus the 2 trailing null bytes.
	payload := body[headerSize : len(body)-2]

	return Packet{ID: id, Kind: kind, Body: string(payload)}, total, true, nil
}
