package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
	"iatbridge/internal/metrics"
)

func TestRecognizeReturnsTranscript(t *testing.T) {
	t.Parallel()

	xfyun := &fakeRecognizer{transcript: domain.Transcript{Text: "你好世界"}}
	e, _ := newTestServer(t, xfyun, &fakeRecognizer{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "/recognize", []byte("pcm-bytes")))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var body textResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Text != "你好世界" {
		t.Fatalf("unexpected text: %q", body.Text)
	}

	path, contents := xfyun.snapshot()
	if contents != "pcm-bytes" {
		t.Fatalf("recognizer saw unexpected upload contents: %q", contents)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected upload %q to be removed, stat err=%v", path, err)
	}
}

func TestRecognizeTencentRoute(t *testing.T) {
	t.Parallel()

	tencent := &fakeRecognizer{transcript: domain.Transcript{Text: "sentence"}}
	e, _ := newTestServer(t, &fakeRecognizer{}, tencent)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "/recognize-tencent", []byte("x")))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sentence") {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRecognizeFailureMapsReason(t *testing.T) {
	t.Parallel()

	xfyun := &fakeRecognizer{err: errorsx.NewProtocolError(10165, "invalid handle", "sid")}
	e, _ := newTestServer(t, xfyun, &fakeRecognizer{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, "/recognize", []byte("pcm")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Code != "protocol" || !strings.Contains(body.Error, "invalid handle") {
		t.Fatalf("unexpected error body: %+v", body)
	}
	path, _ := xfyun.snapshot()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected upload removed after failure")
	}
}

func TestRecognizeRequiresUpload(t *testing.T) {
	t.Parallel()

	e, _ := newTestServer(t, &fakeRecognizer{}, &fakeRecognizer{})
	req := httptest.NewRequest(http.MethodPost, "/recognize", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "bad_request") {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	e, _ := newTestServer(t, &fakeRecognizer{}, &fakeRecognizer{})
	req := httptest.NewRequest(http.MethodOptions, "/recognize", nil)
	req.Header.Set("Origin", "https://page.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS, got headers %v", rec.Header())
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost) {
		t.Fatalf("expected POST in allowed methods, got %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()

	e, _ := newTestServer(t, &fakeRecognizer{}, &fakeRecognizer{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `iat_http_requests_total{route="/healthz",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", rec.Body.String())
	}
}

func newTestServer(t *testing.T, xfyun, tencent *fakeRecognizer) (http.Handler, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{UploadDir: t.TempDir(), MaxUploadBytes: 1 << 20}
	m := metrics.NewMetrics()
	e := NewEchoServer(opts, m, logger)
	NewHandler(xfyun, tencent, opts, logger).RegisterRoutes(e)
	return e, m
}

func uploadRequest(t *testing.T, target string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", "speech.pcm")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

type fakeRecognizer struct {
	transcript domain.Transcript
	err        error

	mu       sync.Mutex
	path     string
	contents string
}

func (f *fakeRecognizer) Recognize(_ context.Context, path string) (domain.Transcript, error) {
	data, _ := os.ReadFile(path)
	f.mu.Lock()
	f.path = path
	f.contents = string(data)
	f.mu.Unlock()
	if f.err != nil {
		return domain.Transcript{}, f.err
	}
	return f.transcript, nil
}

func (f *fakeRecognizer) snapshot() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path, f.contents
}
