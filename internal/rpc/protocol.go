// SPDX-License-Identifier: MIT

package rpc

import (
	"bufio"
	"io"
	"strings"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
)

const (
	// initLine opens every pc_rpc connection.
	initLine = "ARTIQ pc_rpc"

	// DefaultMaxLineSize bounds a single protocol message.
	DefaultMaxLineSize = 16 << 20

	// DefaultPort is the conventional controller port.
	DefaultPort = 3260
)

// lineConn frames pyon values as newline terminated lines.
type lineConn struct {
	r   *bufio.Reader
	w   *bufio.Writer
	max int
}

func newLineConn(rw io.ReadWriter, maxLine int) *lineConn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &lineConn{
		r:   bufio.NewReader(rw),
		w:   bufio.NewWriter(rw),
		max: maxLine,
	}
}

// readLine returns the next line without its terminator. A clean close
// between lines yields io.EOF, a close in the middle of a line
// io.ErrUnexpectedEOF.
func (c *lineConn) readLine() (string, error) {
	var b strings.Builder
	for {
		chunk, err := c.r.ReadSlice('\n')
		if b.Len()+len(chunk) > c.max+1 {
			return "", ErrLineTooLong
		}
		b.Write(chunk)
		switch err {
		case nil:
			return strings.TrimRight(b.String(), "\r\n"), nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if b.Len() == 0 {
				return "", io.EOF
			}
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

func (c *lineConn) writeLine(s string) error {
	if _, err := c.w.WriteString(s); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *lineConn) readValue() (any, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	return pyon.Decode(line)
}

func (c *lineConn) writeValue(v any) error {
	s, err := pyon.Encode(v)
	if err != nil {
		return err
	}
	return c.writeLine(s)
}
