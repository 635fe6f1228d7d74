package httpext

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSSEEvent(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
		want  string
	}{
		{name: "single line", data: "hel", want: "data: hel\n\n"},
		{name: "multi line", data: "a\nb", want: "data: a\ndata: b\n\n"},
		{name: "empty data", data: "", want: "data: \n\n"},
		{name: "named event", event: "error", data: "boom", want: "event: error\ndata: boom\n\n"},
		{name: "trailing newline kept", data: "x\n", want: "data: x\ndata: \n\n"},
		{name: "crlf split once", data: "a\r\nb", want: "data: a\ndata: b\n\n"},
		{name: "bare cr splits", data: "a\rb\r", want: "data: a\ndata: b\ndata: \n\n"},
		{name: "mixed terminators", data: "a\r\n\rb\nc", want: "data: a\ndata: \ndata: b\ndata: c\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, WriteSSEEvent(w, tt.event, tt.data))
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestSetSSEHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetSSEHeaders(w)

	assert.Equal(t, "text/event-stream; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
}
