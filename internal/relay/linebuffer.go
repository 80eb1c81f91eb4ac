package relay

import "bytes"

// lineBuffer splits a byte stream on '\n', retaining only the incomplete tail.
// Splitting raw bytes keeps multi-byte UTF-8 sequences intact across reads.
type lineBuffer struct {
	buf        []byte
	max        int
	discarding bool
	onOversize func()
}

func newLineBuffer(maxLine int, onOversize func()) *lineBuffer {
	return &lineBuffer{max: maxLine, onOversize: onOversize}
}

// feed appends chunk and calls fn for every complete line, without the
// terminator and a trailing '\r'. fn must not retain the slice.
func (b *lineBuffer) feed(chunk []byte, fn func(line []byte) error) error {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if !b.discarding {
				b.buf = append(b.buf, chunk...)
				if b.tooLong(len(b.buf)) {
					b.oversize()
					b.discarding = true
				}
			}
			return nil
		}

		part := chunk[:i]
		chunk = chunk[i+1:]

		if b.discarding {
			b.discarding = false
			continue
		}

		line := part
		if len(b.buf) > 0 {
			b.buf = append(b.buf, part...)
			line = b.buf
		}
		if b.tooLong(len(line)) {
			b.oversize()
			continue
		}

		err := fn(trimCR(line))
		b.buf = b.buf[:0]
		if err != nil {
			return err
		}
	}
	return nil
}

// rest returns the unterminated tail, or nil while discarding an oversized line.
func (b *lineBuffer) rest() []byte {
	if b.discarding {
		return nil
	}
	return trimCR(b.buf)
}

func (b *lineBuffer) tooLong(n int) bool {
	return b.max > 0 && n > b.max
}

func (b *lineBuffer) oversize() {
	b.buf = b.buf[:0]
	if b.onOversize != nil {
		b.onOversize()
	}
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
