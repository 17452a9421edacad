/*
 * classvm - a class-file virtual machine
 * Derived from the Jacobin project. Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package binreader provides big-endian primitive reads over a byte
// stream. Every read either consumes exactly its declared width or
// fails -- it never short-reads silently. Grounded on
// original_source/class-files/src/bytes.rs's ReadNum trait, reworked
// as a concrete reader type since Go has no macro-generated trait impls.
package binreader

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/jacobin-classvm/classvm/internal/vmerr"
)

// Reader wraps an io.Reader with fixed-width big-endian primitive reads.
type Reader struct {
	r io.Reader
}

// New wraps r for big-endian primitive reads.
func New(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) readExact(n int, what string) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, vmerr.Decodef(err, "unexpected end of stream while parsing %s", what)
		}
		return nil, vmerr.Decodef(err, "parsing %s", what)
	}
	return buf, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.readExact(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.readExact(2, "u16")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.readExact(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.readExact(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// U128 returns the high and low 64-bit halves of a big-endian 128-bit read.
func (r *Reader) U128() (hi, lo uint64, err error) {
	b, err := r.readExact(16, "u128")
	if err != nil {
		return 0, 0, err
	}
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:]), nil
}

// I128 returns the high and low halves, with hi carrying the sign.
func (r *Reader) I128() (hi int64, lo uint64, err error) {
	h, l, err := r.U128()
	return int64(h), l, err
}

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.readExact(n, "raw bytes")
}

// Remaining drains whatever is left in the underlying reader, used by
// the decoder's trailing-byte check.
func (r *Reader) Remaining() (int, error) {
	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := r.r.Read(buf)
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}
