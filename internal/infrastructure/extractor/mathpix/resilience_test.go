package mathpix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/infrastructure/resilience"
)

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1.0,
		BreakerEnabled:      false,
	})
}

func TestClassifyTransferError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"nil", nil, false, false},
		{"context canceled", context.Canceled, false, false},
		{"deadline exceeded", context.DeadlineExceeded, false, false},
		{"conversion verdict", conversionError("convert", "encrypted pdf"), false, false},
		{"transport", errors.New("connection reset"), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := classifyTransferError(tt.err)
			if class.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", class.Retryable, tt.retryable)
			}
			if class.RecordFailure != tt.recordFailure {
				t.Errorf("RecordFailure = %v, want %v", class.RecordFailure, tt.recordFailure)
			}
		})
	}
}

func TestClassifySubmitErrorNeverRetries(t *testing.T) {
	class := classifySubmitError(errors.New("connection reset"))
	if class.Retryable {
		t.Error("transport failure on submit marked retryable")
	}
	if !class.RecordFailure {
		t.Error("transport failure on submit not recorded")
	}
}

func TestConvertRetriesDroppedPoll(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"pdf_id":"job-3"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/job-3":
			// First poll drops the connection mid-request.
			if polls.Add(1) == 1 {
				panic(http.ErrAbortHandler)
			}
			fmt.Fprint(w, `{"status":"completed"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/job-3.mmd":
			fmt.Fprint(w, "recovered text")
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	conv := NewWithExecutor(server.URL, "id", "key", time.Millisecond, fastExecutor())
	markdown, err := conv.Convert(context.Background(), []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !strings.Contains(markdown, "recovered text") {
		t.Fatalf("markdown = %q", markdown)
	}
	if polls.Load() != 2 {
		t.Fatalf("poll attempts = %d, want 2", polls.Load())
	}
}

func TestConvertDoesNotRetryRemoteVerdict(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"pdf_id":"job-4"}`)
		default:
			polls.Add(1)
			fmt.Fprint(w, `{"status":"error","error":"encrypted pdf"}`)
		}
	}))
	defer server.Close()

	conv := NewWithExecutor(server.URL, "id", "key", time.Millisecond, fastExecutor())
	_, err := conv.Convert(context.Background(), []byte("%PDF-1.7"))
	if !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if polls.Load() != 1 {
		t.Fatalf("poll attempts = %d, want 1", polls.Load())
	}
}
