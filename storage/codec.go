package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// encoder writes mus-encoded fields. With a nil buffer it only accumulates the
// size, so the same encode function serves both the sizing and writing passes.
type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) str(s string) {
	if e.bs == nil {
		e.n += ord.String.Size(s)
		return
	}
	e.n += ord.String.Marshal(s, e.bs[e.n:])
}

func (e *encoder) boolean(b bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(b)
		return
	}
	e.n += ord.Bool.Marshal(b, e.bs[e.n:])
}

func (e *encoder) integer(v int) {
	if e.bs == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *encoder) u64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

// timestamp stores Unix microseconds; the zero time round-trips.
func (e *encoder) timestamp(t time.Time) {
	v := t.UnixMicro()
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

// vector writes the length followed by fixed 4-byte floats.
func (e *encoder) vector(v []float32) {
	e.integer(len(v))
	for _, f := range v {
		if e.bs == nil {
			e.n += raw.Float32.Size(f)
			continue
		}
		e.n += raw.Float32.Marshal(f, e.bs[e.n:])
	}
}

func (e *encoder) strings(ss []string) {
	e.integer(len(ss))
	for _, s := range ss {
		e.str(s)
	}
}

// stringMap writes keys in sorted order so equal maps encode identically.
func (e *encoder) stringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.integer(len(keys))
	for _, k := range keys {
		e.str(k)
		e.str(m[k])
	}
}

// encode runs fn twice: once to size the buffer, once to fill it.
func encode(fn func(e *encoder)) []byte {
	sizer := &encoder{}
	fn(sizer)
	w := &encoder{bs: make([]byte, sizer.n)}
	fn(w)
	return w.bs
}

// decoder reads mus-encoded fields, keeping the first error and returning zero
// values after it.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: offset %d: %w", ErrSerializationFailed, d.n, err)
	}
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return ""
	}
	d.n += n
	return v
}

func (d *decoder) boolean() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return false
	}
	d.n += n
	return v
}

func (d *decoder) integer() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.n += n
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.n += n
	return v
}

func (d *decoder) timestamp() time.Time {
	if d.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return time.Time{}
	}
	d.n += n
	t := time.UnixMicro(v).UTC()
	if t.Equal(time.Time{}) {
		return time.Time{}
	}
	return t
}

// length reads a collection length and rejects values that cannot fit in the
// remaining input.
func (d *decoder) length() int {
	l := d.integer()
	if d.err != nil {
		return 0
	}
	if l < 0 || l > len(d.bs)-d.n {
		d.fail(ErrTruncatedData)
		return 0
	}
	return l
}

func (d *decoder) vector() []float32 {
	l := d.length()
	if d.err != nil || l == 0 {
		return nil
	}
	out := make([]float32, l)
	for i := range out {
		f, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
		if err != nil {
			d.fail(err)
			return nil
		}
		d.n += n
		out[i] = f
	}
	return out
}

func (d *decoder) strings() []string {
	l := d.length()
	if d.err != nil || l == 0 {
		return nil
	}
	out := make([]string, 0, l)
	for range l {
		out = append(out, d.str())
	}
	return out
}

func (d *decoder) stringMap() map[string]string {
	l := d.length()
	if d.err != nil {
		return nil
	}
	out := make(map[string]string, l)
	for range l {
		k := d.str()
		out[k] = d.str()
	}
	return out
}

// done fails if input remains after the last field.
func (d *decoder) done() error {
	if d.err == nil && d.n != len(d.bs) {
		d.fail(fmt.Errorf("%d trailing bytes", len(d.bs)-d.n))
	}
	return d.err
}
