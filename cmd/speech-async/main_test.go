package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/snarg/speech-async/internal/transcribe"
)

func TestParseArgs_Defaults(t *testing.T) {
	a, err := parseArgs([]string{"gs://bucket/audio.raw"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if a.inputURI != "gs://bucket/audio.raw" {
		t.Errorf("inputURI = %q", a.inputURI)
	}
	if a.encoding != transcribe.EncodingLinear16 {
		t.Errorf("encoding = %q, want LINEAR16", a.encoding)
	}
	if a.sampleRate != 44100 {
		t.Errorf("sampleRate = %d, want 44100", a.sampleRate)
	}
	if a.languageCode != "ja_JP" {
		t.Errorf("languageCode = %q, want ja_JP", a.languageCode)
	}
}

func TestParseArgs_Flags(t *testing.T) {
	a, err := parseArgs([]string{
		"--encoding", "AMR_WB",
		"gs://bucket/call.amr",
		"--sample_rate=16000",
		"--languageCode", "en-US",
		"--output-dir", "/tmp/out",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if a.encoding != transcribe.EncodingAMRWB {
		t.Errorf("encoding = %q, want AMR_WB", a.encoding)
	}
	if a.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", a.sampleRate)
	}
	if a.languageCode != "en-US" {
		t.Errorf("languageCode = %q, want en-US", a.languageCode)
	}
	if a.inputURI != "gs://bucket/call.amr" {
		t.Errorf("inputURI = %q", a.inputURI)
	}
	if a.overrides.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir = %q, want /tmp/out", a.overrides.OutputDir)
	}
}

func TestParseArgs_UsageErrors(t *testing.T) {
	tests := map[string][]string{
		"no_uri":          {},
		"two_uris":        {"gs://a/1", "gs://a/2"},
		"not_gcs":         {"https://example.com/a.wav"},
		"local_path":      {"./audio.wav"},
		"bad_encoding":    {"--encoding", "MP3", "gs://a/1"},
		"lower_encoding":  {"--encoding", "flac", "gs://a/1"},
		"bad_sample_rate": {"--sample_rate", "fast", "gs://a/1"},
		"unknown_flag":    {"--bogus", "gs://a/1"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseArgs(args, io.Discard)
			var ue *usageError
			if !errors.As(err, &ue) {
				t.Errorf("err = %v, want usage error", err)
			}
		})
	}
}

func TestParseArgs_ErrorKinds(t *testing.T) {
	_, err := parseArgs([]string{"s3://bucket/a"}, io.Discard)
	if !errors.Is(err, transcribe.ErrInvalidURI) {
		t.Errorf("err = %v, want ErrInvalidURI", err)
	}
	_, err = parseArgs([]string{"--encoding", "OPUS", "gs://bucket/a"}, io.Discard)
	if !errors.Is(err, transcribe.ErrInvalidEncoding) {
		t.Errorf("err = %v, want ErrInvalidEncoding", err)
	}
}

// fakeSpeech serves asyncrecognize and reports done on the given poll.
type fakeSpeech struct {
	doneOn int32
	hits   atomic.Int32
	polls  atomic.Int32
	body   atomic.Value
}

func (f *fakeSpeech) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1beta1/speech:asyncrecognize":
		b, _ := io.ReadAll(r.Body)
		f.body.Store(string(b))
		w.Write([]byte(`{"name":"777"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v1beta1/operations/777":
		n := f.polls.Add(1)
		if n >= f.doneOn {
			w.Write([]byte(`{"name":"777","done":true,"response":{"results":[{"alternatives":[{"transcript":"hello","confidence":0.9}]}]}}`))
			return
		}
		w.Write([]byte(`{"name":"777","metadata":{"progressPercent":50}}`))
	default:
		http.NotFound(w, r)
	}
}

func withFakeSpeech(t *testing.T, f *fakeSpeech) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	orig := newHTTPClient
	newHTTPClient = func(ctx context.Context, credentialsFile string) (*http.Client, error) {
		return srv.Client(), nil
	}
	t.Cleanup(func() { newHTTPClient = orig })

	t.Setenv("POLL_INTERVAL", "1ms")
	return srv.URL
}

func TestRun_InvalidURINoNetwork(t *testing.T) {
	f := &fakeSpeech{doneOn: 1}
	endpoint := withFakeSpeech(t, f)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--endpoint", endpoint, "--env-file", "nonexistent.env", "file:///tmp/a.wav"}, &stdout, &stderr)
	if code != exitUsage {
		t.Errorf("exit = %d, want %d", code, exitUsage)
	}
	if f.hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0", f.hits.Load())
	}
	if !strings.Contains(stderr.String(), "gs://bucket/path/") {
		t.Errorf("stderr = %q, want scheme hint", stderr.String())
	}
}

func TestRun_EndToEnd(t *testing.T) {
	f := &fakeSpeech{doneOn: 3}
	endpoint := withFakeSpeech(t, f)
	outDir := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "speech.prom")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--endpoint", endpoint,
		"--env-file", "nonexistent.env",
		"--encoding", "FLAC",
		"--sample_rate", "16000",
		"--languageCode", "en-US",
		"--output-dir", outDir,
		"--metrics-file", metricsFile,
		"gs://bucket/meeting.flac",
	}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr.String())
	}

	wantBody := `{"config":{"encoding":"FLAC","sampleRate":16000,"languageCode":"en-US"},"audio":{"uri":"gs://bucket/meeting.flac"}}`
	if got, _ := f.body.Load().(string); got != wantBody {
		t.Errorf("request body =\n  %s\nwant\n  %s", got, wantBody)
	}
	if f.polls.Load() != 3 {
		t.Errorf("polls = %d, want 3", f.polls.Load())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout lines = %d, want 2:\n%s", len(lines), stdout.String())
	}
	if lines[0] != `{"name":"777"}` {
		t.Errorf("first line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"transcript":"hello"`) {
		t.Errorf("final line = %s", lines[1])
	}
	if strings.Count(stderr.String(), "Waiting for server processing...") != 3 {
		t.Errorf("expected 3 waiting messages on stderr:\n%s", stderr.String())
	}

	if _, err := os.Stat(filepath.Join(outDir, "777.json")); err != nil {
		t.Errorf("stored result missing: %v", err)
	}
	if _, err := os.Stat(metricsFile); err != nil {
		t.Errorf("metrics textfile missing: %v", err)
	}
}

func TestRun_APIErrorExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401}}`))
	}))
	defer srv.Close()

	orig := newHTTPClient
	newHTTPClient = func(ctx context.Context, credentialsFile string) (*http.Client, error) {
		return srv.Client(), nil
	}
	defer func() { newHTTPClient = orig }()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--endpoint", srv.URL, "--env-file", "nonexistent.env", "gs://b/a"}, &stdout, &stderr)
	if code != exitError {
		t.Errorf("exit = %d, want %d", code, exitError)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestRun_CredentialsFailure(t *testing.T) {
	f := &fakeSpeech{doneOn: 1}
	endpoint := withFakeSpeech(t, f)
	newHTTPClient = func(ctx context.Context, credentialsFile string) (*http.Client, error) {
		return nil, errors.New("could not find default credentials")
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--endpoint", endpoint, "--env-file", "nonexistent.env", "gs://b/a"}, &stdout, &stderr)
	if code != exitError {
		t.Errorf("exit = %d, want %d", code, exitError)
	}
	if f.hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0", f.hits.Load())
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--help"}, &stdout, &stderr); code != exitOK {
		t.Errorf("exit = %d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "--sample_rate") {
		t.Errorf("usage missing --sample_rate:\n%s", stderr.String())
	}
}
