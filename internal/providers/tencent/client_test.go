package tencent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iatbridge/internal/audio"
	"iatbridge/internal/errorsx"
)

func TestAuthorizationKnownVector(t *testing.T) {
	t.Parallel()

	got := Authorization("AKIDtest", "secretkey", "asr.tencentcloudapi.com", time.Unix(1700000000, 0), []byte(`{"Data":"AAAA"}`))
	want := "TC3-HMAC-SHA256 Credential=AKIDtest/2023-11-14/asr/tc3_request, SignedHeaders=content-type;host, " +
		"Signature=32a4f0c36b292a966619ef91c198e2e3eb65da70cd8b1cb78da2f4ef2ee96f74"
	if got != want {
		t.Fatalf("unexpected authorization:\n got %s\nwant %s", got, want)
	}
}

func TestClientRecognizeSuccess(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	var gotBody sentenceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(`{"Response":{"Result":"你好世界","RequestId":"req-1"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "sid", "skey")
	transcript, err := client.Recognize(context.Background(), writeAudio(t, []byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	if transcript.Text != "你好世界" || transcript.SID != "req-1" {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}

	if gotHeaders.Get("X-TC-Action") != "SentenceRecognition" || gotHeaders.Get("X-TC-Version") != "2019-06-14" {
		t.Fatalf("unexpected action headers: %v", gotHeaders)
	}
	if gotHeaders.Get("X-TC-Timestamp") != "1700000000" || gotHeaders.Get("X-TC-Region") != "ap-guangzhou" {
		t.Fatalf("unexpected timestamp/region headers: %v", gotHeaders)
	}
	if !strings.HasPrefix(gotHeaders.Get("Authorization"), "TC3-HMAC-SHA256 Credential=sid/2023-11-14/asr/tc3_request") {
		t.Fatalf("unexpected authorization: %s", gotHeaders.Get("Authorization"))
	}
	want := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	if gotBody.Data != want || gotBody.DataLen != len(want) || gotBody.EngSerViceType != "16k_zh" || gotBody.VoiceFormat != "pcm" {
		t.Fatalf("unexpected payload: %+v", gotBody)
	}
}

func TestClientRecognizeServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Response":{"Error":{"Code":"AuthFailure.SignatureFailure","Message":"signature mismatch"},"RequestId":"req-2"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "sid", "skey").Recognize(context.Background(), writeAudio(t, []byte{1}))
	var pe *errorsx.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(pe.Message, "signature mismatch") || pe.SID != "req-2" {
		t.Fatalf("unexpected protocol error: %+v", pe)
	}
}

func TestClientRecognizeMissingResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Response":{"RequestId":"req-3"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "sid", "skey").Recognize(context.Background(), writeAudio(t, []byte{1}))
	if !errorsx.HasReason(err, errorsx.ReasonProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestClientRecognizeHTTPFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "sid", "skey").Recognize(context.Background(), writeAudio(t, []byte{1}))
	if !errorsx.HasReason(err, errorsx.ReasonTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestClientRecognizeMissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("https://asr.test", "", "skey").Recognize(context.Background(), "unused.pcm")
	if !errorsx.HasReason(err, errorsx.ReasonConfig) || !errors.Is(err, errorsx.ErrMissingCredentials) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestClientRecognizeMissingAudio(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("https://asr.test", "sid", "skey").Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.pcm"))
	if !errorsx.HasReason(err, errorsx.ReasonAudioRead) {
		t.Fatalf("expected audio read error, got %v", err)
	}
}

func newTestClient(endpoint, secretID, secretKey string) *Client {
	client := NewClient(Config{SecretID: secretID, SecretKey: secretKey, Endpoint: endpoint}, audio.FileSource{}, nil)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	return client
}

func writeAudio(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.pcm")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}
