package wslink

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"unicode/utf8"
)

const (
	CloseNormalClosure           uint16 = 1000
	CloseGoingAway               uint16 = 1001
	CloseProtocolError           uint16 = 1002
	CloseUnsupportedData         uint16 = 1003
	CloseInvalidFramePayloadData uint16 = 1007
	ClosePolicyViolation         uint16 = 1008
	CloseMessageTooBig           uint16 = 1009
	CloseMandatoryExtension      uint16 = 1010
	CloseInternalServerErr       uint16 = 1011
)

const (
	OpcodeContinuation uint8 = 0x0 // Continuation frame
	OpcodeText         uint8 = 0x1 // Text frame (UTF-8)
	OpcodeBinary       uint8 = 0x2 // Binary frame
	OpcodeClose        uint8 = 0x8 // Connection close
	OpcodePing         uint8 = 0x9 // Ping
	OpcodePong         uint8 = 0xA // Pong

	nilOpcode uint8 = 0xFF
)

// MaxControlFramePayload is the RFC 6455 bound on control frame payloads.
const MaxControlFramePayload = 125

// frameHeader is the decoded fixed part of one WebSocket frame.
type frameHeader struct {
	FIN           bool
	OPCODE        uint8
	IsMasked      bool
	PayloadLength int64
	MaskingKey    [4]byte
}

func isValidOpcode(op uint8) bool {
	switch op {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	// 0x3-0x7 and 0xB-0xF are reserved.
	return false
}

func isControl(op uint8) bool {
	return op >= OpcodeClose
}

func isData(op uint8) bool {
	return op == OpcodeText || op == OpcodeBinary
}

func isValidCloseCode(code uint16) bool {
	return code >= 1000 && code <= 1015
}

// parseFrameHeader decodes one frame header from the front of raw.
// It returns the header and the number of bytes it occupies. When raw
// holds fewer bytes than the header needs it returns ErrNeedMoreData
// and consumes nothing; the caller retries with more input. Any other
// error is a protocol violation, fatal for the connection.
//
// Frames arriving at a client must never be masked; a masked frame is
// rejected here.
func parseFrameHeader(raw []byte) (frameHeader, int, error) {
	var hdr frameHeader

	if len(raw) < 2 {
		return hdr, 0, ErrNeedMoreData
	}

	hdr.FIN = raw[0]&0b10000000 != 0
	hdr.OPCODE = raw[0] & 0b00001111
	hdr.IsMasked = raw[1]&0b10000000 != 0
	rsv := raw[0] & 0b01110000

	if rsv != 0 {
		return hdr, 0, protoErr(ErrUnnegotiatedRsvBits)
	}
	if !isValidOpcode(hdr.OPCODE) {
		return hdr, 0, protoErr(ErrInvalidOpcode)
	}
	if hdr.IsMasked {
		return hdr, 0, protoErr(ErrMaskedServerFrame)
	}

	lengthB := raw[1] & 0b01111111
	offset := 2

	switch lengthB {
	case 126:
		if len(raw) < offset+2 {
			return hdr, 0, ErrNeedMoreData
		}
		n := binary.BigEndian.Uint16(raw[offset : offset+2])
		if n < 126 {
			return hdr, 0, protoErr(ErrNonMinimalLength)
		}
		hdr.PayloadLength = int64(n)
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return hdr, 0, ErrNeedMoreData
		}
		n := binary.BigEndian.Uint64(raw[offset : offset+8])
		if n > math.MaxInt64 {
			return hdr, 0, protoErr(ErrInvalidLength)
		}
		if n <= math.MaxUint16 {
			return hdr, 0, protoErr(ErrNonMinimalLength)
		}
		hdr.PayloadLength = int64(n)
		offset += 8
	default:
		hdr.PayloadLength = int64(lengthB)
	}

	if isControl(hdr.OPCODE) {
		if !hdr.FIN || hdr.PayloadLength > MaxControlFramePayload {
			return hdr, 0, protoErr(ErrInvalidControlFrame)
		}
	}

	return hdr, offset, nil
}

// encodeFrame serializes one client-originated frame. Client frames are
// always masked with a fresh key; the length uses its minimal encoding.
func encodeFrame(opcode uint8, fin bool, payload []byte) ([]byte, error) {
	n := len(payload)

	headerLen := 2 + 4 // fixed header + masking key
	switch {
	case n < 126:
	case n <= math.MaxUint16:
		headerLen += 2
	default:
		headerLen += 8
	}

	b := make([]byte, 2, headerLen+n)

	b[0] = opcode
	if fin {
		b[0] |= 0x80
	}
	b[1] = 0x80 // mask bit

	switch {
	case n < 126:
		b[1] |= byte(n)
	case n <= math.MaxUint16:
		b[1] |= 126
		b = binary.BigEndian.AppendUint16(b, uint16(n))
	default:
		b[1] |= 127
		b = binary.BigEndian.AppendUint64(b, uint64(n))
	}

	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	b = append(b, key[:]...)

	masked := make([]byte, n)
	copy(masked, payload)
	mask(masked, key)
	b = append(b, masked...)

	return b, nil
}

// encodeClosePayload builds a close frame payload: 2-byte big-endian
// status code followed by an optional UTF-8 reason.
func encodeClosePayload(code uint16, reason string) []byte {
	p := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(p, code)
	p = append(p, reason...)
	if len(p) > MaxControlFramePayload {
		p = p[:MaxControlFramePayload]
		// the cut may have split a multi-byte rune, trim back to a boundary
		for len(p) > 2 && !utf8.Valid(p[2:]) {
			p = p[:len(p)-1]
		}
	}
	return p
}

// parseClosePayload validates and decodes an inbound close payload. An
// empty payload is allowed and maps to CloseNormalClosure.
func parseClosePayload(p []byte) (uint16, string, error) {
	if len(p) == 0 {
		return CloseNormalClosure, "", nil
	}
	if len(p) == 1 {
		return 0, "", protoErr(ErrInvalidClosePayload)
	}
	code := binary.BigEndian.Uint16(p[:2])
	if !isValidCloseCode(code) {
		return 0, "", protoErr(ErrInvalidCloseCode)
	}
	if len(p) > 2 && !utf8.Valid(p[2:]) {
		return 0, "", protoErr(ErrInvalidClosePayload)
	}
	return code, string(p[2:]), nil
}
