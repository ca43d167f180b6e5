// Package stream reassembles newline-delimited payloads from chunked HTTP
// bodies. Chunk boundaries carry no meaning: a read may end mid-line, and
// the partial line is held until its newline arrives.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

type LineReader struct {
	r *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete line without its line terminator. A final
// line without a trailing newline is returned once the body ends; after
// that Next returns io.EOF. Read errors other than EOF are returned as is.
func (l *LineReader) Next() ([]byte, error) {
	line, err := l.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return bytes.TrimRight(line, "\r"), nil
		}
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// Each calls fn for every non-blank line until the body ends, fn returns an
// error, or a read fails. A clean end of body returns nil.
func Each(r io.Reader, fn func(line []byte) error) error {
	lines := NewLineReader(r)
	for {
		line, err := lines.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}
