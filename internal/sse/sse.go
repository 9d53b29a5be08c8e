// Package sse implements the subset of Server-Sent Events used by the voice
// stream: data-only records on the server side and a tolerant line reader on
// the client side.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// SetHeaders prepares a response for streaming events.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Writer frames payloads as "data: <payload>\n\n" records and flushes each
// record immediately when the destination supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. If w implements http.Flusher every record is flushed.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Data writes one record. Payloads must not contain newlines.
func (w *Writer) Data(payload []byte) error {
	if bytes.ContainsAny(payload, "\r\n") {
		return errors.New("sse: payload contains a line break")
	}
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	w.flush()
	return nil
}

// JSON marshals v and writes it as one record.
func (w *Writer) JSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.Data(b)
}

// Comment writes a comment line, used as a keep-alive.
func (w *Writer) Comment(text string) error {
	if _, err := io.WriteString(w.w, ": "+text+"\n\n"); err != nil {
		return err
	}
	w.flush()
	return nil
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}

// Reader splits an event stream into records. Lines may arrive split
// across reads of the underlying reader.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the data of the next record, with multiple data lines joined
// by "\n". Records without data and comment lines are skipped. At the end of
// the stream a record whose last line is complete is returned even without
// the closing blank line; one cut off mid-line is discarded.
func (r *Reader) Next() ([]byte, error) {
	var data []string
	hasData := false
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if hasData && line == "" {
					return []byte(strings.Join(data, "\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				return []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
			hasData = true
		}
	}
}
