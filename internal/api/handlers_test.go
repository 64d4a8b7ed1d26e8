package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"tubesum/internal/apperr"
	"tubesum/internal/config"
	"tubesum/internal/logger"
	"tubesum/internal/service/pipeline"
	"tubesum/internal/tempfile"
)

type mockAcquirer struct {
	payload []byte
	err     error
	calls   int
}

func (m *mockAcquirer) Acquire(_ context.Context, _ string, destPath string) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(destPath, m.payload, 0o644)
}

type mockTranscriber struct {
	text string
	err  error
}

func (m *mockTranscriber) Transcribe(context.Context, string) (string, error) {
	return m.text, m.err
}

type mockGenerator struct {
	summary string
	answer  string
	err     error
	asked   []string
}

func (m *mockGenerator) Summarize(context.Context, string) (string, error) {
	return m.summary, m.err
}

func (m *mockGenerator) Answer(_ context.Context, question, contextText string) (string, error) {
	m.asked = append(m.asked, question+"|"+contextText)
	return m.answer, m.err
}

type testServer struct {
	router      http.Handler
	handler     *Handler
	files       *tempfile.Manager
	acquirer    *mockAcquirer
	transcriber *mockTranscriber
	generator   *mockGenerator
}

func newTestServer(t *testing.T, env string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	files, err := tempfile.NewManager(filepath.Join(t.TempDir(), "temp"), time.Hour, logger.Discard())
	if err != nil {
		t.Fatalf("temp manager: %v", err)
	}
	ts := &testServer{
		files:       files,
		acquirer:    &mockAcquirer{payload: []byte("ID3 audio bytes")},
		transcriber: &mockTranscriber{text: "the video talks about go"},
		generator:   &mockGenerator{summary: "Key takeaways: go is fun", answer: "The topic is Go."},
	}
	p, err := pipeline.New(pipeline.Deps{
		Acquirer:    ts.acquirer,
		Transcriber: ts.transcriber,
		Generator:   ts.generator,
		Files:       files,
		Logger:      logger.Discard(),
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{"openai": {APIKey: "k"}}}
	cfg.BasicConfig.Environment = env
	cfg.BasicConfig.AllowedOrigins = []string{"http://localhost:3000"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	ts.handler = NewHandler(p, files, cfg, logger.Discard())
	ts.handler.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	ts.router = NewRouter(ts.handler, cfg.BasicConfig.AllowedOrigins)
	return ts
}

func TestSummarizeSuccess(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/summarize", map[string]string{"url": "https://youtu.be/abc123"}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Summary string `json:"summary"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Summary == "" {
		t.Fatalf("expected non-empty summary")
	}
	if resp.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
	assertNoTempFiles(t, ts.files)
}

func TestSummarizeInvalidURL(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/summarize", map[string]string{"url": "not a url"}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	var body errorBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error == "" || body.Type != string(apperr.KindValidation) {
		t.Fatalf("unexpected error body %+v", body)
	}
	if body.Details != "" {
		t.Fatalf("details must be hidden in production")
	}
	if ts.acquirer.calls != 0 {
		t.Fatalf("acquirer should not run")
	}
	assertNoTempFiles(t, ts.files)
}

func TestSummarizeMalformedJSON(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	req := httptest.NewRequest(http.MethodPost, "/api/summarize", strings.NewReader("{url:"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestSummarizeAcquisitionFailure(t *testing.T) {
	ts := newTestServer(t, config.EnvDevelopment)
	ts.acquirer.err = apperr.New(apperr.KindAcquisition, "Sign in to confirm you're not a bot")

	resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/summarize", map[string]string{"url": "https://www.youtube.com/watch?v=abc123"}, nil)
	if resp.Code < 500 {
		t.Fatalf("expected 5xx, got %d", resp.Code)
	}
	var body errorBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error == "" || body.Type != string(apperr.KindAcquisition) {
		t.Fatalf("unexpected error body %+v", body)
	}
	if body.Details == "" {
		t.Fatalf("expected stack details outside production")
	}
	assertNoTempFiles(t, ts.files)
}

func TestSummarizeErrorHidesCauseInProduction(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)
	cause := errors.New("exit status 1: ERROR: /usr/local/bin/yt-dlp could not write /srv/tubesum/temp/audio-1.mp3")
	ts.acquirer.err = apperr.Wrap(apperr.KindAcquisition, cause, "failed to download audio")

	resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/summarize", map[string]string{"url": "https://youtu.be/abc123"}, nil)
	assertStatus(t, resp, http.StatusBadGateway)
	var body errorBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != "failed to download audio" {
		t.Fatalf("error = %q", body.Error)
	}
	if body.Details != "" || strings.Contains(resp.Body.String(), "/srv/tubesum") {
		t.Fatalf("response leaks internals: %s", resp.Body.String())
	}
	assertNoTempFiles(t, ts.files)
}

func TestSummarizeErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(ts *testServer)
		status int
		kind   apperr.Kind
	}{
		{"empty audio", func(ts *testServer) { ts.acquirer.payload = nil }, http.StatusBadGateway, apperr.KindEmptyAudio},
		{"empty transcript", func(ts *testServer) { ts.transcriber.text = " " }, http.StatusBadGateway, apperr.KindTranscription},
		{"transcriber down", func(ts *testServer) { ts.transcriber.err = errors.New("503") }, http.StatusBadGateway, apperr.KindTranscription},
		{"generator down", func(ts *testServer) { ts.generator.err = errors.New("429") }, http.StatusBadGateway, apperr.KindGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, config.EnvProduction)
			tt.setup(ts)
			resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/summarize", map[string]string{"url": "https://youtu.be/abc123"}, nil)
			assertStatus(t, resp, tt.status)
			var body errorBody
			decodeJSON(t, resp.Body.Bytes(), &body)
			if body.Type != string(tt.kind) {
				t.Fatalf("type = %s, want %s", body.Type, tt.kind)
			}
			assertNoTempFiles(t, ts.files)
		})
	}
}

func TestSummarizeUpload(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	audio := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x64}, 512)...)
	resp := doMultipartRequest(t, ts.router, "/api/summarize/upload", "clip.mp3", audio)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Summary string `json:"summary"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Summary == "" {
		t.Fatalf("expected non-empty summary")
	}
	if ts.acquirer.calls != 0 {
		t.Fatalf("upload must not download")
	}
	assertNoTempFiles(t, ts.files)
}

func TestSummarizeUploadValidation(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doMultipartRequest(t, ts.router, "/api/summarize/upload", "notes.txt", []byte("just some plain text, not audio"))
	assertStatus(t, resp, http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/api/summarize/upload", strings.NewReader(""))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)
	assertNoTempFiles(t, ts.files)
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/ask", map[string]string{
		"question": "what is the topic?",
		"context":  "Key takeaways: go is fun",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Answer string `json:"answer"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Answer == "" {
		t.Fatalf("expected non-empty answer")
	}

	resp = doJSONRequest(t, ts.router, http.MethodPost, "/api/ask", map[string]string{
		"question": "and then?",
		"context":  "another summary",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	want := []string{"what is the topic?|Key takeaways: go is fun", "and then?|another summary"}
	if diff := cmp.Diff(want, ts.generator.asked); diff != "" {
		t.Fatalf("generator inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestAskValidation(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doJSONRequest(t, ts.router, http.MethodPost, "/api/ask", map[string]string{"question": "what?"}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	var body errorBody
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestHealthIsIdempotent(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	var first []byte
	for i := 0; i < 3; i++ {
		resp := doJSONRequest(t, ts.router, http.MethodGet, "/health", nil, nil)
		assertStatus(t, resp, http.StatusOK)
		var body struct {
			Status        string `json:"status"`
			Timestamp     string `json:"timestamp"`
			TempDirectory bool   `json:"tempDirectory"`
		}
		decodeJSON(t, resp.Body.Bytes(), &body)
		if body.Status != "ok" || !body.TempDirectory {
			t.Fatalf("unexpected health body %+v", body)
		}
		if body.Timestamp != "2024-05-01T12:00:00.000Z" {
			t.Fatalf("timestamp = %s", body.Timestamp)
		}
		if first == nil {
			first = resp.Body.Bytes()
		} else if !bytes.Equal(first, resp.Body.Bytes()) {
			t.Fatalf("health response changed between calls")
		}
	}
	assertNoTempFiles(t, ts.files)
}

func TestClientConfig(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doJSONRequest(t, ts.router, http.MethodGet, "/api/config", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		APIBaseURL   string `json:"apiBaseUrl"`
		MaxQuestions int    `json:"maxQuestions"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.APIBaseURL != "http://example.com" || body.MaxQuestions != 6 {
		t.Fatalf("unexpected config %+v", body)
	}
}

func TestWelcome(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	resp := doJSONRequest(t, ts.router, http.MethodGet, "/", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Body.String(), "/api/summarize") {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)

	req := httptest.NewRequest(http.MethodOptions, "/api/summarize", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow credentials = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/summarize", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

func assertNoTempFiles(t *testing.T, files *tempfile.Manager) {
	t.Helper()
	entries, err := os.ReadDir(files.Dir())
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty temp dir, found %d entries", len(entries))
	}
}

func doJSONRequest(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doMultipartRequest(t *testing.T, router http.Handler, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
