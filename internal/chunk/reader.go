package chunk

import (
	"io"
	"slices"
)

// growStep bounds how much buffer is allocated ahead of the bytes actually
// received. Spans up to this size are read with a single call.
const growStep = 1 << 20

// Reader reads consecutive spans into one reused buffer. Span sizes come
// from file headers, so the buffer only grows as far as the data that
// really arrives: a truncated or lying file fails with io.ErrUnexpectedEOF
// instead of forcing an allocation of the declared size.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads exactly n bytes. The returned slice is only valid until the
// next call.
func (rd *Reader) Next(n int) ([]byte, error) {
	if n <= cap(rd.buf) {
		rd.buf = rd.buf[:n]
		if _, err := io.ReadFull(rd.r, rd.buf); err != nil {
			return nil, err
		}
		return rd.buf, nil
	}

	rd.buf = rd.buf[:0]
	for len(rd.buf) < n {
		start := len(rd.buf)
		step := min(n-start, max(start, growStep))
		rd.buf = slices.Grow(rd.buf, step)[:start+step]
		if _, err := io.ReadFull(rd.r, rd.buf[start:]); err != nil {
			if err == io.EOF && start > 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return rd.buf, nil
}
