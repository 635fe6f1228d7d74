package apiclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/deepgram/glmchat/internal/logger"
)

// readSize is how much of the response body is requested per read.
const readSize = 1024

// StreamError carries an "error" event sent by the server mid-stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream aborted by server: " + e.Message
}

// responseEncoding picks the decoder for the charset named in contentType,
// falling back to UTF-8.
func responseEncoding(contentType string) encoding.Encoding {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return unicode.UTF8
	}

	enc, err := htmlindex.Get(params["charset"])
	if err != nil {
		logger.For(logger.CLIENT).Warn().Str("charset", params["charset"]).Msg("Unknown response charset, decoding as UTF-8")
		return unicode.UTF8
	}
	return enc
}

// decodeStream reads an event stream in fixed-size increments. Bytes are
// decoded to UTF-8 through a transformer that holds back incomplete
// multi-byte sequences, and events are only cut at line breaks, so a read
// boundary never splits a character.
func decodeStream(body io.Reader, contentType string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		r := transform.NewReader(body, responseEncoding(contentType).NewDecoder())
		p := &eventParser{}
		buf := make([]byte, readSize)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range p.feed(buf[:n]) {
					if !emit(ev, yield) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				if ev, ok := p.finish(); ok {
					emit(ev, yield)
				}
				return
			}
			if err != nil {
				yield("", fmt.Errorf("read stream: %w", err))
				return
			}
		}
	}
}

// emit hands one event to yield and reports whether to keep reading.
func emit(ev event, yield func(string, error) bool) bool {
	if ev.name == "error" {
		yield("", &StreamError{Message: ev.data})
		return false
	}
	return yield(ev.data, nil)
}

type event struct {
	name string
	data string
}

// eventParser assembles server-sent events from arbitrary slices of text.
// Lines end in CRLF, LF or a bare CR.
type eventParser struct {
	pending []byte
	name    string
	data    [][]byte
	hasData bool
}

func (p *eventParser) feed(chunk []byte) []event {
	p.pending = append(p.pending, chunk...)

	var events []event
	for {
		i := bytes.IndexAny(p.pending, "\r\n")
		if i < 0 {
			break
		}
		next := i + 1
		if p.pending[i] == '\r' {
			// a CR at the end of the chunk may be the first half of CRLF
			if next == len(p.pending) {
				break
			}
			if p.pending[next] == '\n' {
				next++
			}
		}
		if ev, ok := p.line(p.pending[:i]); ok {
			events = append(events, ev)
		}
		p.pending = p.pending[next:]
	}

	// keep the unfinished line in a fresh slice so the buffer does not grow
	p.pending = append([]byte(nil), p.pending...)
	return events
}

func (p *eventParser) line(line []byte) (event, bool) {
	if len(line) == 0 {
		return p.dispatch()
	}
	if line[0] == ':' {
		return event{}, false
	}

	field, value, _ := bytes.Cut(line, []byte{':'})
	value = bytes.TrimPrefix(value, []byte{' '})

	switch string(field) {
	case "event":
		p.name = string(value)
	case "data":
		p.data = append(p.data, append([]byte(nil), value...))
		p.hasData = true
	}
	return event{}, false
}

func (p *eventParser) dispatch() (event, bool) {
	defer func() {
		p.name = ""
		p.data = nil
		p.hasData = false
	}()
	if !p.hasData {
		return event{}, false
	}
	return event{name: p.name, data: string(bytes.Join(p.data, []byte{'\n'}))}, true
}

// finish flushes an event left open when the stream ended without a blank line.
func (p *eventParser) finish() (event, bool) {
	if len(p.pending) > 0 {
		if ev, ok := p.line(bytes.TrimSuffix(p.pending, []byte{'\r'})); ok {
			p.pending = nil
			return ev, true
		}
		p.pending = nil
	}
	return p.dispatch()
}
