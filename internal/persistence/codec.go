package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"
)

// encoder writes little-endian values and remembers the first error.
type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.write(e.buf[:1])
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.write(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

func (e *encoder) f32(v float64) {
	e.u32(math.Float32bits(float32(v)))
}

// value writes v at the given precision.
func (e *encoder) value(p Precision, v float64) {
	if p == Float16 {
		e.u16(float16.Fromfloat32(float32(v)).Bits())
		return
	}
	e.f32(v)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.write([]byte(s))
}

// decoder reads little-endian values and remembers the first error.
type decoder struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.err = fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return d.buf[:n]
}

func (d *decoder) u8() uint8 { return d.read(1)[0] }

func (d *decoder) u16() uint16 { return binary.LittleEndian.Uint16(d.read(2)) }

func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.read(4)) }

func (d *decoder) u64() uint64 { return binary.LittleEndian.Uint64(d.read(8)) }

func (d *decoder) f32() float64 { return float64(math.Float32frombits(d.u32())) }

func (d *decoder) value(p Precision) float64 {
	if p == Float16 {
		return float64(float16.Frombits(d.u16()).Float32())
	}
	return d.f32()
}

// count reads a block length and rejects values above limit.
func (d *decoder) count(block string, limit int) int {
	n := d.u32()
	if d.err == nil && int64(n) > int64(limit) {
		d.err = fmt.Errorf("%w: %s block holds %d entries, limit %d", ErrCorrupt, block, n, limit)
		return 0
	}
	return int(n)
}

func (d *decoder) str(limit int) string {
	n := d.count("string", limit)
	if d.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = fmt.Errorf("%w: %v", ErrCorrupt, err)
		return ""
	}
	return string(b)
}
