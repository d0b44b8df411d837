package lsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
)

// maxMessageSize bounds a single payload; larger headers are rejected
// before allocating.
const maxMessageSize = 64 << 20

var errMissingLength = errors.New("missing Content-Length header")

// readMessage reads one base-protocol frame: MIME-style headers, a blank
// line, then Content-Length bytes of payload.
func readMessage(r *bufio.Reader) ([]byte, error) {
	header, err := textproto.NewReader(r).ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	value := header.Get("Content-Length")
	if value == "" {
		return nil, errMissingLength
	}
	length, err := strconv.Atoi(value)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", value)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds the %d byte limit", length, maxMessageSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeMessage writes the frame with a single Write.
func writeMessage(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(payload)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}
