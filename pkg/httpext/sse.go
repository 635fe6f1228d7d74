package httpext

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SetSSEHeaders prepares w for a text/event-stream response
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// sseLineBreaks folds every line terminator an event stream recognises into \n.
var sseLineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// WriteSSEEvent writes a single event. Every line of data is sent as its own
// data field; receivers join them back with newlines, so CRLF and bare CR
// line breaks arrive as \n. An empty event name writes an unnamed (message)
// event.
func WriteSSEEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(sseLineBreaks.Replace(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write SSE event: %w", err)
	}
	return nil
}
