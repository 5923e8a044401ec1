package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(url string) *ElevenLabsClient {
	c := NewElevenLabsClient("test-key", "scribe_v1", 5*time.Second)
	c.endpoint = url
	return c
}

func TestTranscribe_Success(t *testing.T) {
	var gotKey, gotModel, gotLang, gotDiarize, gotEvents string
	var gotAudio []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model_id")
		gotLang = r.FormValue("language_code")
		gotDiarize = r.FormValue("diarize")
		gotEvents = r.FormValue("tag_audio_events")

		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			buf := make([]byte, 16)
			n, _ := f.Read(buf)
			gotAudio = buf[:n]
			f.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"language_code":"eng","language_probability":0.98,"text":"hello everyone, thanks for joining"}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Transcribe(context.Background(), Request{
		Audio:     []byte("RIFF.fake"),
		Filename:  "standup.wav",
		Language:  "eng",
		Diarize:   true,
		TagEvents: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if result.Text != "hello everyone, thanks for joining" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Language != "eng" {
		t.Errorf("Language = %q, want eng", result.Language)
	}
	if gotKey != "test-key" {
		t.Errorf("xi-api-key = %q, want test-key", gotKey)
	}
	if gotModel != "scribe_v1" {
		t.Errorf("model_id = %q, want scribe_v1", gotModel)
	}
	if gotLang != "eng" {
		t.Errorf("language_code = %q, want eng", gotLang)
	}
	if gotDiarize != "true" || gotEvents != "true" {
		t.Errorf("diarize = %q, tag_audio_events = %q, want true/true", gotDiarize, gotEvents)
	}
	if string(gotAudio) != "RIFF.fake" {
		t.Errorf("uploaded audio = %q, want RIFF.fake", gotAudio)
	}
}

func TestTranscribe_DefaultLanguage(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotLang = r.FormValue("language_code")
		w.Write([]byte(`{"language_code":"eng","text":"ok"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), Request{
		Audio:    []byte("x"),
		Filename: "a.mp3",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotLang != "eng" {
		t.Errorf("language_code = %q, want eng default", gotLang)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"audio too short"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), Request{
		Audio:    []byte("x"),
		Filename: "a.mp3",
	})
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !strings.Contains(err.Error(), "status 422") {
		t.Errorf("error %q does not mention status 422", err)
	}
	if !strings.Contains(err.Error(), "audio too short") {
		t.Errorf("error %q does not carry upstream detail", err)
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"language_code":"eng","text":""}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), Request{
		Audio:    []byte("x"),
		Filename: "a.mp3",
	})
	if err == nil {
		t.Fatal("expected error for empty transcription")
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway timeout</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), Request{
		Audio:    []byte("x"),
		Filename: "a.mp3",
	})
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd" {
		t.Errorf("truncate = %q, want abcd", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Errorf("truncate = %q, want ab", got)
	}
}
