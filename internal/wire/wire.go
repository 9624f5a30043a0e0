// Package wire frames encoded documents together with their identifier so byte
// stores can verify that what they read back belongs to the key it was read from.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1
	kindDoc byte = 1
)

var (
	ErrCorrupt = errors.New("mongocache: corrupt record")
	ErrIDSize  = errors.New("mongocache: id must be 1..65535 bytes")
	magic4     = [...]byte{'M', 'C', 'D', 'C'}
)

const hdr = 4 + 1 + 1 + 2

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record: magic(4) | ver(1) | kind(1=doc) | idLen(u16 be) | id(idLen) | vlen(u32 be) | payload(vlen)
func EncodeRecord(id string, payload []byte) ([]byte, error) {
	if l := len(id); l == 0 || l > 0xFFFF {
		return nil, ErrIDSize
	}
	var buf bytes.Buffer
	buf.Grow(hdr + len(id) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindDoc)

	var u2 [2]byte
	var u4 [4]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(id)))
	buf.Write(u2[:])
	buf.WriteString(id)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeRecord is strict: wrong magic/version/kind, truncation and trailing bytes
// are all ErrCorrupt. The returned payload aliases b.
func DecodeRecord(b []byte) (id string, payload []byte, err error) {
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindDoc {
		return "", nil, ErrCorrupt
	}
	off := 6

	idLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if idLen == 0 || idLen > len(b)-off {
		return "", nil, ErrCorrupt
	}
	id = string(b[off : off+idLen])
	off += idLen

	if off+4 > len(b) {
		return "", nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return "", nil, ErrCorrupt
	}
	return id, b[off:], nil
}

// DecodeRecordFor decodes b and additionally requires the framed id to equal want.
func DecodeRecordFor(want string, b []byte) ([]byte, error) {
	id, payload, err := DecodeRecord(b)
	if err != nil {
		return nil, err
	}
	if id != want {
		return nil, ErrCorrupt
	}
	return payload, nil
}
