package wslink

import "encoding/binary"

// mask applies the RFC 6455 masking transform in place. The same
// transform unmasks, but frames reaching a client are never masked, so
// only the send path uses it.
func mask(payload []byte, key [4]byte) {
	k := binary.BigEndian.Uint32(key[:])
	k64 := uint64(k)<<32 | uint64(k)

	b := payload
	for len(b) >= 8 {
		v := binary.BigEndian.Uint64(b)
		binary.BigEndian.PutUint64(b, v^k64)
		b = b[8:]
	}
	for len(b) >= 4 {
		v := binary.BigEndian.Uint32(b)
		binary.BigEndian.PutUint32(b, v^k)
		b = b[4:]
	}
	// Block processing consumed a multiple of 4, so key alignment holds.
	for i := range b {
		b[i] ^= key[i%4]
	}
}
