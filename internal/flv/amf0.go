// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// AMF0 type markers.
const (
	amfNumber      = 0x00
	amfBoolean     = 0x01
	amfString      = 0x02
	amfObject      = 0x03
	amfNull        = 0x05
	amfUndefined   = 0x06
	amfReference   = 0x07
	amfECMAArray   = 0x08
	amfObjectEnd   = 0x09
	amfStrictArray = 0x0a
	amfDate        = 0x0b
	amfLongString  = 0x0c
)

const maxAMFDepth = 32

var ErrAMF = errors.New("flv: malformed amf0 data")

// Property is one key/value pair of an AMF object. Order is preserved.
type Property struct {
	Key   string
	Value any
}

// Object is an ordered AMF0 anonymous object.
type Object []Property

// ECMAArray is an ordered AMF0 associative array, the usual onMetaData payload.
type ECMAArray []Property

// Undefined is the AMF0 undefined value.
type Undefined struct{}

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) { return getProp(o, key) }

// Get returns the value stored under key.
func (a ECMAArray) Get(key string) (any, bool) { return getProp(a, key) }

func getProp(props []Property, key string) (any, bool) {
	for _, p := range props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Properties returns the key/value pairs of an object-like AMF value.
func Properties(v any) []Property {
	switch t := v.(type) {
	case Object:
		return t
	case ECMAArray:
		return t
	default:
		return nil
	}
}

// ParseScriptData decodes a script tag body: a string name followed by one value.
func ParseScriptData(data []byte) (string, any, error) {
	d := amfDecoder{b: data}
	nameVal, err := d.value(0)
	if err != nil {
		return "", nil, err
	}
	name, ok := nameVal.(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: script name is %T", ErrAMF, nameVal)
	}
	if d.p >= len(d.b) {
		return name, nil, nil
	}
	v, err := d.value(0)
	if err != nil {
		return name, nil, err
	}
	return name, v, nil
}

// DecodeAMF0 decodes a single AMF0 value and returns it with the bytes consumed.
func DecodeAMF0(b []byte) (any, int, error) {
	d := amfDecoder{b: b}
	v, err := d.value(0)
	return v, d.p, err
}

type amfDecoder struct {
	b []byte
	p int
}

func (d *amfDecoder) need(n int) error {
	if d.p+n > len(d.b) {
		return fmt.Errorf("%w: need %d bytes at %d", ErrAMF, n, d.p)
	}
	return nil
}

func (d *amfDecoder) u16() (int, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := int(binary.BigEndian.Uint16(d.b[d.p:]))
	d.p += 2
	return v, nil
}

func (d *amfDecoder) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.b[d.p:])
	d.p += 4
	return v, nil
}

func (d *amfDecoder) str(n int) (string, error) {
	if err := d.need(n); err != nil {
		return "", err
	}
	s := string(d.b[d.p : d.p+n])
	d.p += n
	return s, nil
}

func (d *amfDecoder) shortString() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	return d.str(n)
}

func (d *amfDecoder) number() (float64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(d.b[d.p:]))
	d.p += 8
	return v, nil
}

func (d *amfDecoder) value(depth int) (any, error) {
	if depth > maxAMFDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrAMF)
	}
	if err := d.need(1); err != nil {
		return nil, err
	}
	marker := d.b[d.p]
	d.p++

	switch marker {
	case amfNumber:
		return d.number()
	case amfBoolean:
		if err := d.need(1); err != nil {
			return nil, err
		}
		v := d.b[d.p] != 0
		d.p++
		return v, nil
	case amfString:
		return d.shortString()
	case amfLongString:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		return d.str(int(n))
	case amfObject:
		props, err := d.properties(depth)
		return Object(props), err
	case amfECMAArray:
		// The count is advisory; the end marker terminates the array.
		if _, err := d.u32(); err != nil {
			return nil, err
		}
		props, err := d.properties(depth)
		return ECMAArray(props), err
	case amfStrictArray:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		if int(n) > len(d.b)-d.p {
			return nil, fmt.Errorf("%w: strict array length %d", ErrAMF, n)
		}
		out := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case amfDate:
		ms, err := d.number()
		if err != nil {
			return nil, err
		}
		if _, err := d.u16(); err != nil { // time zone, always zero
			return nil, err
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	case amfNull:
		return nil, nil
	case amfUndefined:
		return Undefined{}, nil
	case amfReference:
		if _, err := d.u16(); err != nil {
			return nil, err
		}
		return Undefined{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported marker 0x%02x", ErrAMF, marker)
	}
}

func (d *amfDecoder) properties(depth int) ([]Property, error) {
	var props []Property
	for {
		key, err := d.shortString()
		if err != nil {
			return props, err
		}
		if key == "" {
			if err := d.need(1); err != nil {
				return props, err
			}
			if d.b[d.p] == amfObjectEnd {
				d.p++
				return props, nil
			}
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return props, err
		}
		props = append(props, Property{Key: key, Value: v})
	}
}

// AppendAMF0 appends the AMF0 encoding of v. Supported Go types are float64,
// the integer kinds, bool, string, nil, Undefined, Object, ECMAArray, []any and
// time.Time.
func AppendAMF0(dst []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(dst, amfNull), nil
	case Undefined:
		return append(dst, amfUndefined), nil
	case float64:
		return appendNumber(dst, t), nil
	case int:
		return appendNumber(dst, float64(t)), nil
	case int64:
		return appendNumber(dst, float64(t)), nil
	case uint32:
		return appendNumber(dst, float64(t)), nil
	case bool:
		b := byte(0)
		if t {
			b = 1
		}
		return append(dst, amfBoolean, b), nil
	case string:
		if len(t) > math.MaxUint16 {
			dst = append(dst, amfLongString)
			dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
			return append(dst, t...), nil
		}
		dst = append(dst, amfString)
		return appendKey(dst, t), nil
	case Object:
		dst = append(dst, amfObject)
		return appendProperties(dst, t)
	case ECMAArray:
		dst = append(dst, amfECMAArray)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		return appendProperties(dst, t)
	case []any:
		dst = append(dst, amfStrictArray)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(t)))
		var err error
		for _, e := range t {
			if dst, err = AppendAMF0(dst, e); err != nil {
				return dst, err
			}
		}
		return dst, nil
	case time.Time:
		dst = appendNumber(dst, float64(t.UnixMilli()))
		dst[len(dst)-9] = amfDate
		return append(dst, 0, 0), nil
	default:
		return dst, fmt.Errorf("%w: cannot encode %T", ErrAMF, v)
	}
}

func appendNumber(dst []byte, f float64) []byte {
	dst = append(dst, amfNumber)
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(f))
}

func appendKey(dst []byte, k string) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(k)))
	return append(dst, k...)
}

func appendProperties(dst []byte, props []Property) ([]byte, error) {
	var err error
	for _, p := range props {
		dst = appendKey(dst, p.Key)
		if dst, err = AppendAMF0(dst, p.Value); err != nil {
			return dst, err
		}
	}
	return append(dst, 0, 0, amfObjectEnd), nil
}

// MetaDataOffsets locates the number payloads patched when a segment closes.
type MetaDataOffsets struct {
	Duration int
	FileSize int
}

// EncodeOnMetaData encodes an onMetaData script body with duration and filesize
// entries first, followed by props (minus any duration/filesize they carry).
// The returned offsets point at the 8-byte float64 of each entry.
func EncodeOnMetaData(props []Property) ([]byte, MetaDataOffsets, error) {
	var off MetaDataOffsets
	b, _ := AppendAMF0(nil, "onMetaData")

	rest := make([]Property, 0, len(props))
	for _, p := range props {
		if p.Key == "duration" || p.Key == "filesize" {
			continue
		}
		rest = append(rest, p)
	}

	b = append(b, amfECMAArray)
	b = binary.BigEndian.AppendUint32(b, uint32(len(rest)+2))
	b = appendKey(b, "duration")
	off.Duration = len(b) + 1
	b = appendNumber(b, 0)
	b = appendKey(b, "filesize")
	off.FileSize = len(b) + 1
	b = appendNumber(b, 0)

	b, err := appendProperties(b, rest)
	if err != nil {
		return nil, off, err
	}
	return b, off, nil
}

// PutNumber overwrites the float64 at off, as returned by EncodeOnMetaData.
func PutNumber(b []byte, off int, v float64) {
	binary.BigEndian.PutUint64(b[off:off+8], math.Float64bits(v))
}
