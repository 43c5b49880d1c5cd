package httpadapter

import (
	"fmt"
	"net/http"
	"strings"
)

// streamWriter delivers orchestrator output to the client as it is
// produced. With an "Accept: text/event-stream" request it frames output
// as SSE events (progress, delta, error, done); otherwise it degrades to
// plain text carrying only the answer deltas.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	sse     bool
	started bool
}

func newStreamWriter(w http.ResponseWriter, r *http.Request) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{
		w:       w,
		flusher: flusher,
		sse:     strings.Contains(r.Header.Get("Accept"), "text/event-stream"),
	}
}

func (s *streamWriter) start() {
	if s.started {
		return
	}
	s.started = true
	if s.sse {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
	} else {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	s.w.WriteHeader(http.StatusOK)
}

func (s *streamWriter) Progress(msg string) error {
	s.start()
	if !s.sse {
		return nil
	}
	return s.event("progress", msg)
}

func (s *streamWriter) Delta(text string) error {
	s.start()
	if !s.sse {
		if _, err := fmt.Fprint(s.w, text); err != nil {
			return err
		}
		s.flush()
		return nil
	}
	return s.event("delta", text)
}

// Error reports a mid-stream failure. Once streaming has begun the HTTP
// status is already sent, so the failure travels in-band.
func (s *streamWriter) Error(err error) {
	if !s.started {
		writeError(s.w, mapErrorToHTTPStatus(err), err)
		return
	}
	if s.sse {
		_ = s.event("error", err.Error())
	}
}

func (s *streamWriter) Done() {
	s.start()
	if s.sse {
		_ = s.event("done", "")
	}
}

func (s *streamWriter) event(name, data string) error {
	// Multi-line payloads need one data: prefix per line to stay valid SSE.
	var sb strings.Builder
	fmt.Fprintf(&sb, "event: %s\n", name)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&sb, "data: %s\n", line)
	}
	sb.WriteString("\n")

	if _, err := fmt.Fprint(s.w, sb.String()); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *streamWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
