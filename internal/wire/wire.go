package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version       byte = 1
	kindSingle    byte = 1
	kindAggregate byte = 2
)

var (
	ErrCorrupt   = errors.New("memocache: corrupt record")
	ErrKeyLength = errors.New("memocache: invalid aggregate key length")
	magic4       = [...]byte{'M', 'E', 'M', 'O'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Single: magic(4) | ver(1) | kind(1=single) | vlen(u32 be) | payload(vlen)
func EncodeSingle(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSingle)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeSingle returns the payload of a single record. The returned slice
// aliases b.
func DecodeSingle(b []byte) ([]byte, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSingle {
		return nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[6:hdr]))
	if vlen != len(b)-hdr {
		return nil, ErrCorrupt
	}
	return b[hdr:], nil
}

// Entry is one physical address and its encoded value inside an aggregate.
type Entry struct {
	Key     string
	Payload []byte
}

// Aggregate holds every entry of one group record, in insertion order.
// The zero value is an empty aggregate ready to use.
type Aggregate struct {
	entries []Entry
	index   map[string]int
}

func (a *Aggregate) Len() int { return len(a.entries) }

func (a *Aggregate) Get(key string) ([]byte, bool) {
	i, ok := a.index[key]
	if !ok {
		return nil, false
	}
	return a.entries[i].Payload, true
}

// Put replaces the payload of key in place, or appends it.
func (a *Aggregate) Put(key string, payload []byte) {
	if a.index == nil {
		a.index = make(map[string]int)
	}
	if i, ok := a.index[key]; ok {
		a.entries[i].Payload = payload
		return
	}
	a.index[key] = len(a.entries)
	a.entries = append(a.entries, Entry{Key: key, Payload: payload})
}

func (a *Aggregate) Keys() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Key
	}
	return out
}

// Aggregate:
//
//	magic(4) | ver(1) | kind(2=aggregate) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) | vlen(u32 be) | payload(vlen) * n
func EncodeAggregate(a *Aggregate) ([]byte, error) {
	total := 4 + 1 + 1 + 4
	for _, e := range a.entries {
		if l := len(e.Key); l == 0 || l > 0xFFFF {
			return nil, ErrKeyLength
		}
		total += 2 + len(e.Key) + 4 + len(e.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindAggregate)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(a.entries)))
	buf.Write(u4[:])

	for _, e := range a.entries {
		binary.BigEndian.PutUint16(u2[:], uint16(len(e.Key)))
		buf.Write(u2[:])
		buf.WriteString(e.Key)

		binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
		buf.Write(u4[:])
		buf.Write(e.Payload)
	}
	return buf.Bytes(), nil
}

// DecodeAggregate parses an aggregate record. Payloads alias b.
// Duplicate keys and trailing bytes are rejected as corruption.
func DecodeAggregate(b []byte) (*Aggregate, error) {
	const hdr = 4 + 1 + 1 + 4
	const minEntry = 2 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindAggregate {
		return nil, ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// n is untrusted; never preallocate past what the buffer could hold
	if n < 0 || n > (len(b)-off)/minEntry {
		return nil, ErrCorrupt
	}

	a := &Aggregate{
		entries: make([]Entry, 0, n),
		index:   make(map[string]int, n),
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen == 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		if off+4 > len(b) {
			return nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		payload := b[off : off+vlen]
		off += vlen

		if _, dup := a.index[key]; dup {
			return nil, ErrCorrupt
		}
		a.Put(key, payload)
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return a, nil
}
