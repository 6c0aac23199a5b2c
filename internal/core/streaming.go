package core

// streaming.go wraps object bodies before CSV decoding.
//
// Files exported from spreadsheet tools often start with a UTF-8 BOM and may
// contain bytes that are not valid UTF-8. Both are fixed on the fly so memory
// stays bounded by the read buffer regardless of object size:
//
//   - bomSkipper drops a leading 0xEF 0xBB 0xBF
//   - utf8Sanitizer replaces invalid bytes with '?'
//   - CountingReader tracks bytes consumed for the parse summary
//
// Use WrapForStreaming to apply all three in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkipper discards a UTF-8 byte order mark at the start of the stream.
type bomSkipper struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkipper(r io.Reader) *bomSkipper {
	return &bomSkipper{br: bufio.NewReader(r)}
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			_, _ = b.br.Discard(len(utf8BOM))
		}
	}
	return b.br.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 with '?' one byte at a time so the
// output never grows. A multi-byte rune split across reads is held back
// until the rest of it arrives.
type utf8Sanitizer struct {
	r   io.Reader
	buf []byte
	in  []byte // undecoded tail of the last read
	out []byte // sanitized bytes not yet returned
	err error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, buf: make([]byte, 4096)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.out) == 0 {
		if s.err != nil {
			if len(s.in) > 0 {
				s.flush(true)
				continue
			}
			return 0, s.err
		}
		n, err := s.r.Read(s.buf)
		s.in = append(s.in, s.buf[:n]...)
		s.err = err
		s.flush(err != nil)
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// flush moves complete runes from in to out. Unless atEOF, an incomplete
// sequence at the end of in is kept for the next read.
func (s *utf8Sanitizer) flush(atEOF bool) {
	out := s.out[:0]
	i := 0
	for i < len(s.in) {
		c := s.in[i]
		if c < utf8.RuneSelf {
			out = append(out, c)
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(s.in[i:]) {
			break
		}
		_, size := utf8.DecodeRune(s.in[i:])
		if size == 1 {
			out = append(out, '?')
		} else {
			out = append(out, s.in[i:i+size]...)
		}
		i += size
	}
	s.out = out
	s.in = append(s.in[:0], s.in[i:]...)
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
	Total     int64 // 0 when the size is unknown
}

// NewCountingReader wraps r; total is the expected size or 0.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, Total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	return int(c.BytesRead * 100 / c.Total)
}

// WrapForStreaming strips a BOM, sanitizes UTF-8 and counts bytes.
//
// The order matters:
// 1. BOM must be stripped first (before any processing)
// 2. UTF-8 sanitization happens next
// 3. Counting wraps everything
func WrapForStreaming(r io.Reader, totalSize int64) *CountingReader {
	return NewCountingReader(newUTF8Sanitizer(newBOMSkipper(r)), totalSize)
}
