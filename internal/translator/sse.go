package translator

import (
	"bytes"
	"io"
	"strings"
)

// StreamTransform rewrites an upstream SSE byte stream into the client's
// dialect. Feed accepts raw chunks as they arrive and writes any completed
// events to w; Flush emits the dialect's terminator if the upstream ended
// without one. Implementations hold per-request state and are not safe for
// concurrent use.
type StreamTransform interface {
	Feed(p []byte, w io.Writer) error
	Flush(w io.Writer) error
}

// sseFrame is one parsed SSE frame: the optional event name and the joined
// data payload.
type sseFrame struct {
	event string
	data  string
}

// frameBuffer accumulates raw bytes and splits completed frames on the
// blank-line boundary. CRLF is normalized so both line conventions split
// identically; a trailing CR is withheld until the next chunk in case the
// pair was split across reads.
type frameBuffer struct {
	buf       bytes.Buffer
	pendingCR bool
}

func (fb *frameBuffer) add(p []byte) {
	if fb.pendingCR {
		p = append([]byte{'\r'}, p...)
		fb.pendingCR = false
	}
	if n := len(p); n > 0 && p[n-1] == '\r' {
		fb.pendingCR = true
		p = p[:n-1]
	}
	fb.buf.Write(bytes.ReplaceAll(p, []byte("\r\n"), []byte("\n")))
}

// next returns the earliest complete frame, or ok=false when the buffer
// holds only a partial frame.
func (fb *frameBuffer) next() (sseFrame, bool) {
	raw := fb.buf.Bytes()
	block, rest, found := bytes.Cut(raw, []byte("\n\n"))
	if !found {
		return sseFrame{}, false
	}
	frame := parseFrame(block)
	fb.buf.Next(len(raw) - len(rest))
	return frame, true
}

// parseFrame reads event: and data: lines; multiple data lines concatenate
// with a newline, per the SSE spec.
func parseFrame(block []byte) sseFrame {
	var frame sseFrame
	var data []string
	for _, line := range strings.Split(string(block), "\n") {
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			frame.event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(after, " "))
		}
	}
	frame.data = strings.Join(data, "\n")
	return frame
}

// writeSSEEvent writes a frame in the claude convention
// (event: <type>\ndata: <json>\n\n).
func writeSSEEvent(w io.Writer, event string, data []byte) error {
	if _, err := io.WriteString(w, "event: "+event+"\ndata: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n\n")
	return err
}

// writeSSEData writes a frame in the openai convention (data: <json>\n\n).
func writeSSEData(w io.Writer, data []byte) error {
	if _, err := io.WriteString(w, "data: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n\n")
	return err
}
