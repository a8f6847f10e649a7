package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/usecase"
)

func TestRequestLogCarriesTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	uc := &fakeTryOnUC{sessions: make(map[string]*model.TryOnSession)}
	lc := &fakeLifecycle{result: usecase.ApplyApplied}
	srv := NewServer(uc, lc, nil, NewCallbackTokenManager("test-secret", time.Hour), "/webhook/try-on", &logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"message":"http_request"`) {
		t.Fatalf("no request log line emitted: %s", out)
	}
	if !strings.Contains(out, `"trace_id":"`) {
		t.Errorf("request log lacks trace_id: %s", out)
	}
	if !strings.Contains(out, `"path":"/health"`) || !strings.Contains(out, `"status":200`) {
		t.Errorf("request log lacks path or status: %s", out)
	}
}

func TestRequestLogRecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	uc := &fakeTryOnUC{sessions: make(map[string]*model.TryOnSession)}
	lc := &fakeLifecycle{result: usecase.ApplyApplied}
	srv := NewServer(uc, lc, nil, NewCallbackTokenManager("test-secret", time.Hour), "/webhook/try-on", &logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/try-on/missing", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(buf.String(), `"status":404`) {
		t.Errorf("request log did not capture the handler status: %s", buf.String())
	}
}
