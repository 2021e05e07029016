package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clipfarm/audio"
	"clipfarm/history"
	"clipfarm/production"
	"clipfarm/types"
	"clipfarm/video"

	"go.uber.org/zap"
)

type stubScripts struct{}

func (stubScripts) GenerateScript(context.Context, types.GenerateParams) (*types.ProductScript, error) {
	return &types.ProductScript{
		Title: "Glow Serum",
		Segments: []types.ScriptSegment{
			{Dialogue: "Meet Glow.", ImagePrompt: "p0"},
			{Dialogue: "Shop now.", ImagePrompt: "p1"},
		},
		Sources: []types.Source{},
	}, nil
}

type stubImages struct{}

func (stubImages) GenerateImage(context.Context, string, string, *types.InlineImage) (*types.InlineImage, error) {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	return &types.InlineImage{Data: buf.Bytes(), MIMEType: "image/png"}, nil
}

type stubSpeech struct{}

func (stubSpeech) Synthesize(context.Context, string, types.Voice) (*audio.AudioBuffer, error) {
	return audio.NewAudioBuffer(1, 24000, 24000), nil
}

type stubEncoder struct{ n int }

func (e *stubEncoder) WriteFrame([]byte) error { e.n++; return nil }
func (e *stubEncoder) Close() ([]byte, error)  { return []byte("fake-mp4"), nil }
func (e *stubEncoder) Abort()                  {}

type stubFactory struct{}

func (stubFactory) NewEncoder(context.Context, video.EncoderConfig) (video.Encoder, error) {
	return &stubEncoder{}, nil
}
func (stubFactory) ContentType() string { return "video/mp4" }
func (stubFactory) Extension() string   { return "mp4" }

type testServer struct {
	handler http.Handler
	svc     *production.Service
	history *history.History
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	compositor, err := video.NewCompositor(36, 64)
	if err != nil {
		t.Fatalf("NewCompositor error: %v", err)
	}
	library := audio.NewMusicLibrary(t.TempDir())
	hist := history.New(history.NewMemoryStore(0), zap.NewNop())
	svc := production.NewService(production.Dependencies{
		Scripts:    stubScripts{},
		Images:     stubImages{},
		Speech:     stubSpeech{},
		Mixer:      audio.NewMixer(library, nil, nil, zap.NewNop()),
		History:    hist,
		Compositor: compositor,
		Encoders:   stubFactory{},
	}, zap.NewNop())
	h := NewHandler(svc, hist, library, nil, zap.NewNop())
	return &testServer{handler: NewRouter(h), svc: svc, history: hist}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: invalid JSON %q", method, path, rec.Body.String())
		}
	}
	return rec, resp
}

func TestHealthAndCatalog(t *testing.T) {
	s := newTestServer(t)

	if rec, _ := s.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", rec.Code)
	}

	rec, resp := s.do(t, http.MethodGet, "/api/voices", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("GET /api/voices = %d %+v", rec.Code, resp)
	}
	if voices, _ := resp.Data.([]interface{}); len(voices) != len(types.AvailableVoices) {
		t.Fatalf("voices = %v", resp.Data)
	}

	_, resp = s.do(t, http.MethodGet, "/api/music", nil)
	tracks, _ := resp.Data.([]interface{})
	if len(tracks) == 0 || tracks[0].(map[string]interface{})["id"] != audio.TrackNone {
		t.Fatalf("music = %v", resp.Data)
	}
}

func TestCreateProductionValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing url", map[string]interface{}{"tone": "Hype"}},
		{"unknown tone", map[string]interface{}{"url": "https://shop.example.com/x", "tone": "Loud"}},
		{"duration out of range", map[string]interface{}{"url": "https://shop.example.com/x", "durationSeconds": 5}},
		{"bad image", map[string]interface{}{"url": "https://shop.example.com/x", "productImage": "not-a-data-url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := s.do(t, http.MethodPost, "/api/productions", tt.body)
			if rec.Code != http.StatusBadRequest || resp.Success {
				t.Fatalf("status = %d, response = %+v", rec.Code, resp)
			}
		})
	}
}

func TestCreateProductionAccepted(t *testing.T) {
	s := newTestServer(t)
	rec, resp := s.do(t, http.MethodPost, "/api/productions", map[string]interface{}{"url": "https://shop.example.com/x"})
	if rec.Code != http.StatusAccepted || !resp.Success {
		t.Fatalf("status = %d, response = %+v", rec.Code, resp)
	}
	id, _ := resp.Data.(map[string]interface{})["id"].(string)
	if id == "" {
		t.Fatalf("no id in %v", resp.Data)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := s.svc.Status(id)
		if err == nil && snap.Stage == production.StageReady {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("production never became ready: %+v", snap)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProductionFlow(t *testing.T) {
	s := newTestServer(t)
	id, err := s.svc.Generate(context.Background(), types.GenerateParams{URL: "https://shop.example.com/glow"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	base := "/api/productions/" + id

	if rec, _ := s.do(t, http.MethodPost, base+"/render", nil); rec.Code != http.StatusConflict {
		t.Fatalf("render before audio = %d; want 409", rec.Code)
	}
	if rec, resp := s.do(t, http.MethodDelete, base+"/render", nil); rec.Code != http.StatusConflict || resp.Success {
		t.Fatalf("cancel without render = %d", rec.Code)
	}

	rec, _ := s.do(t, http.MethodPatch, base+"/segments/1", map[string]string{"dialogue": "Order today."})
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH segment = %d %s", rec.Code, rec.Body.String())
	}
	if rec, _ := s.do(t, http.MethodPatch, base+"/segments/9", map[string]string{"dialogue": "x"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("PATCH out of range = %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodGet, base+"/segments/0/image", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("GET segment image = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	pcm := base64.StdEncoding.EncodeToString(make([]byte, 2*24000))
	rec, _ = s.do(t, http.MethodPost, base+"/audio", map[string]interface{}{"narrationPcm": pcm, "backgroundTrackId": "none"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST audio = %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = s.do(t, http.MethodGet, base+"/audio.wav", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "audio/wav" {
		t.Fatalf("GET audio.wav = %d", rec.Code)
	}
	if info, err := audio.ReadWAVInfo(rec.Body.Bytes()); err != nil || info.Seconds() != 1 {
		t.Fatalf("audio = %+v, %v", info, err)
	}

	rec, _ = s.do(t, http.MethodPost, base+"/render", map[string]interface{}{"clock": "virtual"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST render = %d %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, _ = s.do(t, http.MethodGet, base+"/video", nil)
		if rec.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("video never became available: %d", rec.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "Glow_Serum_PREMIUM_AD.mp4") {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != "fake-mp4" {
		t.Fatalf("video body = %q", rec.Body.String())
	}
}

func TestProduceAudioRejectsUnknownVoiceAndTrack(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.svc.Generate(context.Background(), types.GenerateParams{URL: "https://shop.example.com/glow"})
	base := "/api/productions/" + id

	if rec, _ := s.do(t, http.MethodPost, base+"/audio", map[string]string{"voice": "Robot"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown voice = %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPost, base+"/audio", map[string]string{"backgroundTrackId": "song99"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown track = %d", rec.Code)
	}
}

func TestUnknownProduction(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/productions/nope", "/api/productions/nope/video", "/api/productions/nope/audio.wav"} {
		if rec, resp := s.do(t, http.MethodGet, path, nil); rec.Code != http.StatusNotFound || resp.Success {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestHistoryRoutes(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.svc.Generate(context.Background(), types.GenerateParams{URL: "https://shop.example.com/glow"})

	_, resp := s.do(t, http.MethodGet, "/api/history", nil)
	if entries, _ := resp.Data.([]interface{}); len(entries) != 1 {
		t.Fatalf("history = %v", resp.Data)
	}

	rec, resp := s.do(t, http.MethodPost, "/api/history/"+id+"/restore", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("restore = %d %+v", rec.Code, resp)
	}
	if rec, _ := s.do(t, http.MethodPost, "/api/history/missing/restore", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("restore missing = %d", rec.Code)
	}

	if rec, _ := s.do(t, http.MethodDelete, "/api/history", nil); rec.Code != http.StatusOK {
		t.Fatalf("DELETE history = %d", rec.Code)
	}
	_, resp = s.do(t, http.MethodGet, "/api/history", nil)
	if entries, _ := resp.Data.([]interface{}); len(entries) != 0 {
		t.Fatalf("history after clear = %v", resp.Data)
	}
}

func TestFeedRefreshWithoutFeeds(t *testing.T) {
	s := newTestServer(t)
	if rec, _ := s.do(t, http.MethodPost, "/api/feeds/refresh", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("refresh = %d", rec.Code)
	}
}
