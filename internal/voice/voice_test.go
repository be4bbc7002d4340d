package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"dimana nyeri nya?","language":"id"}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL)
	got, err := c.Transcribe(context.Background(), []byte("not-really-audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "dimana nyeri nya?" {
		t.Errorf("text = %q", got)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL)
	if _, err := c.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error on 503")
	}
}

type stubSynth struct {
	audio []byte
	err   error
}

func (s stubSynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.audio, s.err
}

func TestSpeakerDeliversAudio(t *testing.T) {
	var delivered []byte
	sp := NewSpeaker(stubSynth{audio: []byte("mp3")}, "v1", func(audio []byte) {
		delivered = audio
	})

	if err := sp.Speak(context.Background(), "Di dada kiri, dok."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if string(delivered) != "mp3" {
		t.Errorf("delivered = %q", delivered)
	}
}

func TestSpeakerStopSuppressesDelivery(t *testing.T) {
	delivered := false
	sp := NewSpeaker(stubSynth{audio: []byte("mp3")}, "v1", func([]byte) {
		delivered = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sp.Speak(ctx, "line"); err == nil {
		t.Fatal("expected context error")
	}
	if delivered {
		t.Error("audio delivered after stop")
	}
}
