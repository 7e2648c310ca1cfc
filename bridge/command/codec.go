package command

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/types"
)

const u128Size = 16

// reader records the first error and returns zero values after it so the
// decoder can be written as a sequence of field reads.
type reader struct {
	buf []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedPayload, n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) u128() *uint256.Int {
	b := r.next(u128Size)
	if b == nil {
		return uint256.NewInt(0)
	}
	be := slices.Clone(b)
	slices.Reverse(be)
	return new(uint256.Int).SetBytes(be)
}

func (r *reader) address() types.Address {
	var a types.Address
	if b := r.next(len(a)); b != nil {
		copy(a[:], b)
	}
	return a
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("%w: %d unexpected trailing bytes", ErrMalformedPayload, len(r.buf))
	}
	return nil
}

type writer struct {
	buf []byte
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// u128 writes the low 128 bits of v.
func (w *writer) u128(v *uint256.Int) {
	var be [32]byte
	if v != nil {
		be = v.Bytes32()
	}
	le := slices.Clone(be[32-u128Size:])
	slices.Reverse(le)
	w.buf = append(w.buf, le...)
}

func (w *writer) address(a types.Address) {
	w.buf = append(w.buf, a[:]...)
}
