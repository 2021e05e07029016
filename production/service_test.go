package production

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"clipfarm/audio"
	"clipfarm/history"
	"clipfarm/types"
	"clipfarm/video"

	"go.uber.org/zap"
)

type fakeScripts struct {
	script *types.ProductScript
	err    error
}

func (f *fakeScripts) GenerateScript(_ context.Context, _ types.GenerateParams) (*types.ProductScript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.script.Clone(), nil
}

type fakeImages struct {
	mu      sync.Mutex
	failOn  map[string]bool
	prompts []string
	refs    []*types.InlineImage
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt, _ string, ref *types.InlineImage) (*types.InlineImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.refs = append(f.refs, ref)
	if f.failOn[prompt] {
		return nil, errors.New("safety filter")
	}
	return &types.InlineImage{Data: pngBytes(), MIMEType: "image/png"}, nil
}

type fakeSpeech struct {
	text    string
	seconds int
	calls   int
	err     error
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string, _ types.Voice) (*audio.AudioBuffer, error) {
	f.text = text
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return audio.NewAudioBuffer(1, 24000*f.seconds, 24000), nil
}

type fakeHeroes struct{ url string }

func (f *fakeHeroes) FetchImage(_ context.Context, url string) (*types.InlineImage, error) {
	f.url = url
	return &types.InlineImage{Data: []byte("hero"), MIMEType: "image/jpeg"}, nil
}

type fakeStore struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "file:///videos/" + key, nil
}

type countingEncoder struct{ frames int }

func (e *countingEncoder) WriteFrame([]byte) error { e.frames++; return nil }
func (e *countingEncoder) Close() ([]byte, error)  { return bytes.Repeat([]byte{0}, e.frames), nil }
func (e *countingEncoder) Abort()                  {}

type countingFactory struct{}

func (countingFactory) NewEncoder(context.Context, video.EncoderConfig) (video.Encoder, error) {
	return &countingEncoder{}, nil
}

func (countingFactory) ContentType() string { return "video/mp4" }
func (countingFactory) Extension() string   { return "mp4" }

// gatedEncoder holds every frame until gate closes or the render stops.
type gatedEncoder struct {
	ctx  context.Context
	gate chan struct{}
}

func (e *gatedEncoder) WriteFrame([]byte) error {
	select {
	case <-e.gate:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}
func (e *gatedEncoder) Close() ([]byte, error) { return []byte("old-mix-video"), nil }
func (e *gatedEncoder) Abort()                  {}

type gatedFactory struct{ gate chan struct{} }

func (f gatedFactory) NewEncoder(ctx context.Context, _ video.EncoderConfig) (video.Encoder, error) {
	return &gatedEncoder{ctx: ctx, gate: f.gate}, nil
}
func (gatedFactory) ContentType() string { return "video/mp4" }
func (gatedFactory) Extension() string   { return "mp4" }

type fakePublisher struct{ title string }

func (f *fakePublisher) Publish(_ context.Context, script *types.ProductScript, _ *video.Artifact) (string, error) {
	f.title = script.Title
	return "https://youtube.com/shorts/abc", nil
}

func pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func testScript() *types.ProductScript {
	return &types.ProductScript{
		Title:        "Glow Serum",
		Description:  "A calm night routine",
		VisualSpecs:  "amber glass bottle",
		HeroImageURL: "https://shop.example.com/hero.jpg",
		Segments: []types.ScriptSegment{
			{Time: "0-5s", Dialogue: "Meet Glow.", ImagePrompt: "p0"},
			{Time: "5-10s", Dialogue: "It works overnight.", ImagePrompt: "p1"},
			{Time: "10-15s", Dialogue: "Shop now.", ImagePrompt: "p2"},
		},
		Sources: []types.Source{},
	}
}

type fixture struct {
	svc     *Service
	scripts *fakeScripts
	images  *fakeImages
	speech  *fakeSpeech
	heroes  *fakeHeroes
	store   *fakeStore
	history *history.History
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithEncoders(t, countingFactory{})
}

func newFixtureWithEncoders(t *testing.T, encoders video.EncoderFactory) *fixture {
	t.Helper()
	compositor, err := video.NewCompositor(72, 128)
	if err != nil {
		t.Fatalf("NewCompositor error: %v", err)
	}
	f := &fixture{
		scripts: &fakeScripts{script: testScript()},
		images:  &fakeImages{failOn: map[string]bool{}},
		speech:  &fakeSpeech{seconds: 1},
		heroes:  &fakeHeroes{},
		store:   &fakeStore{},
		history: history.New(history.NewMemoryStore(0), zap.NewNop()),
	}
	f.svc = NewService(Dependencies{
		Scripts:    f.scripts,
		Images:     f.images,
		Speech:     f.speech,
		Heroes:     f.heroes,
		Mixer:      audio.NewMixer(audio.NewMusicLibrary(t.TempDir()), nil, nil, zap.NewNop()),
		History:    f.history,
		Compositor: compositor,
		Encoders:   encoders,
		Artifacts:  f.store,
	}, zap.NewNop())
	return f
}

var testParams = types.GenerateParams{URL: "https://shop.example.com/glow", DurationSeconds: 15, Tone: types.ToneMinimal}

func TestGenerateContinuesAfterSegmentFailure(t *testing.T) {
	f := newFixture(t)
	f.images.failOn["p1"] = true

	id, err := f.svc.Generate(context.Background(), testParams)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	p, _ := f.svc.Get(id)

	results := p.SegmentResults()
	if len(results) != 1 || results[0].Index != 1 || !strings.Contains(results[0].Err, "safety filter") {
		t.Fatalf("segment results = %+v", results)
	}
	if len(f.images.prompts) != 3 {
		t.Fatalf("image calls = %v; want all three segments attempted", f.images.prompts)
	}

	snap := p.Snapshot()
	if snap.Stage != StageReady {
		t.Fatalf("stage = %s; want ready", snap.Stage)
	}
	if !snap.Segments[0].HasImage || snap.Segments[1].HasImage || !snap.Segments[2].HasImage {
		t.Fatalf("segments = %+v", snap.Segments)
	}
	if snap.Script.Segments[0].Image != nil {
		t.Fatal("snapshot leaked image payloads")
	}

	saved, err := f.history.Load(context.Background())
	if err != nil || len(saved) != 1 || saved[0].ID != id {
		t.Fatalf("history = %+v, %v", saved, err)
	}
}

func TestGenerateUsesHeroImageAsReference(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Generate(context.Background(), testParams); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if f.heroes.url != "https://shop.example.com/hero.jpg" {
		t.Fatalf("hero fetched from %q", f.heroes.url)
	}
	for i, ref := range f.images.refs {
		if ref == nil || string(ref.Data) != "hero" {
			t.Fatalf("image call %d reference = %+v", i, ref)
		}
	}
}

func TestGeneratePrefersUploadedImage(t *testing.T) {
	f := newFixture(t)
	withImage := testParams
	withImage.ProductImage = &types.InlineImage{Data: []byte("upload"), MIMEType: "image/png"}

	if _, err := f.svc.Generate(context.Background(), withImage); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if f.heroes.url != "" {
		t.Fatal("hero image fetched although an image was uploaded")
	}
	if string(f.images.refs[0].Data) != "upload" {
		t.Fatalf("reference = %q", f.images.refs[0].Data)
	}
}

func TestGenerateScriptFailure(t *testing.T) {
	f := newFixture(t)
	f.scripts.err = errors.New("quota")

	id, err := f.svc.Generate(context.Background(), testParams)
	if err == nil {
		t.Fatal("expected an error")
	}
	snap, serr := f.svc.Status(id)
	if serr != nil {
		t.Fatalf("Status error: %v", serr)
	}
	if snap.Stage != StageFailed || !strings.Contains(snap.Error, "quota") {
		t.Fatalf("snapshot = %+v", snap)
	}
	if saved, _ := f.history.Load(context.Background()); len(saved) != 0 {
		t.Fatal("failed production was saved to history")
	}
}

func TestGenerateRejectsInvalidParams(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Generate(context.Background(), types.GenerateParams{}); err == nil {
		t.Fatal("expected an error for a missing url")
	}
}

func TestProduceAudio(t *testing.T) {
	f := newFixture(t)
	id, _ := f.svc.Generate(context.Background(), testParams)

	if _, err := f.svc.Render(context.Background(), id, video.ClockVirtual, false); !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("Render before audio error = %v; want ErrNoAudioTrack", err)
	}

	if err := f.svc.ProduceAudio(context.Background(), id, types.VoiceKore, audio.DefaultMixConfiguration()); err != nil {
		t.Fatalf("ProduceAudio error: %v", err)
	}
	if f.speech.text != "Meet Glow. It works overnight. Shop now." {
		t.Fatalf("narration text = %q", f.speech.text)
	}

	wav, err := f.svc.AudioWAV(id)
	if err != nil {
		t.Fatalf("AudioWAV error: %v", err)
	}
	info, err := audio.ReadWAVInfo(wav)
	if err != nil {
		t.Fatalf("ReadWAVInfo error: %v", err)
	}
	if info.Seconds() != 1 {
		t.Fatalf("mix length = %vs; want 1s", info.Seconds())
	}
	snap, _ := f.svc.Status(id)
	if !snap.HasAudio || snap.Voice != types.VoiceKore || snap.Stage != StageReady {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestProduceAudioFailureKeepsScript(t *testing.T) {
	f := newFixture(t)
	id, _ := f.svc.Generate(context.Background(), testParams)
	f.speech.err = errors.New("tts unavailable")

	if err := f.svc.ProduceAudio(context.Background(), id, "", audio.DefaultMixConfiguration()); err == nil {
		t.Fatal("expected an error")
	}
	snap, _ := f.svc.Status(id)
	if snap.Stage != StageReady || snap.Script == nil || snap.HasAudio {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !strings.Contains(snap.Error, "tts unavailable") {
		t.Fatalf("error = %q", snap.Error)
	}
}

func TestProduceAudioSurfacesMissingTrack(t *testing.T) {
	f := newFixture(t)
	id, _ := f.svc.Generate(context.Background(), testParams)

	mix := audio.DefaultMixConfiguration()
	mix.BackgroundTrackID = "song1"
	err := f.svc.ProduceAudio(context.Background(), id, "", mix)
	if !errors.Is(err, audio.ErrBackgroundTrack) {
		t.Fatalf("ProduceAudio error = %v; want ErrBackgroundTrack", err)
	}
}

func TestRunRendersAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.images.failOn["p2"] = true
	pub := &fakePublisher{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := f.svc.Run(ctx, Request{Params: testParams, Publish: true}, pub)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Artifact.FileName != "Glow_Serum_PREMIUM_AD.mp4" {
		t.Fatalf("file name = %q", res.Artifact.FileName)
	}
	// 1s narration plus the 1s outro at 30 fps
	if res.Artifact.Size != 60 {
		t.Fatalf("artifact size = %d; want 60 frames", res.Artifact.Size)
	}
	if pub.title != "Glow Serum" || res.PublishedURL == "" {
		t.Fatalf("publish = %q %q", pub.title, res.PublishedURL)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, _ := f.svc.Status(res.ID)
		if snap.VideoURL != "" {
			if snap.Stage != StageComplete || snap.VideoURL != "file:///videos/"+res.ID+"/Glow_Serum_PREMIUM_AD.mp4" {
				t.Fatalf("snapshot = %+v", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("artifact was never stored")
		}
		time.Sleep(time.Millisecond)
	}
	if a, err := f.svc.Artifact(res.ID); err != nil || a.Size != 60 {
		t.Fatalf("Artifact = %+v, %v", a, err)
	}
}

func TestUpdateDialogueInvalidatesAudio(t *testing.T) {
	f := newFixture(t)
	id, _ := f.svc.Generate(context.Background(), testParams)
	if err := f.svc.ProduceAudio(context.Background(), id, "", audio.DefaultMixConfiguration()); err != nil {
		t.Fatalf("ProduceAudio error: %v", err)
	}

	if err := f.svc.UpdateDialogue(id, 1, "  Wake up glowing.  "); err != nil {
		t.Fatalf("UpdateDialogue error: %v", err)
	}
	snap, _ := f.svc.Status(id)
	if snap.HasAudio {
		t.Fatal("stale audio kept after a dialogue edit")
	}
	if snap.Script.Segments[1].Dialogue != "Wake up glowing." {
		t.Fatalf("dialogue = %q", snap.Script.Segments[1].Dialogue)
	}

	tests := []struct {
		index int
		text  string
		want  error
	}{
		{5, "x", ErrSegmentIndex},
		{-1, "x", ErrSegmentIndex},
	}
	for _, tt := range tests {
		if err := f.svc.UpdateDialogue(id, tt.index, tt.text); !errors.Is(err, tt.want) {
			t.Fatalf("UpdateDialogue(%d) error = %v; want %v", tt.index, err, tt.want)
		}
	}
	if err := f.svc.UpdateDialogue(id, 0, "   "); err == nil {
		t.Fatal("expected an error for empty dialogue")
	}
	if err := f.svc.UpdateDialogue("nope", 0, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id error = %v", err)
	}
}

func TestProduceAudioReusesNarrationForSameVoice(t *testing.T) {
	f := newFixture(t)
	id, _ := f.svc.Generate(context.Background(), testParams)

	if err := f.svc.ProduceAudio(context.Background(), id, types.VoiceKore, audio.DefaultMixConfiguration()); err != nil {
		t.Fatalf("ProduceAudio error: %v", err)
	}
	if err := f.svc.ProduceAudio(context.Background(), id, types.VoiceKore, audio.DefaultMixConfiguration()); err != nil {
		t.Fatalf("second ProduceAudio error: %v", err)
	}
	if f.speech.calls != 1 {
		t.Fatalf("speech calls = %d; want 1", f.speech.calls)
	}

	if err := f.svc.UpdateDialogue(id, 0, "Meet Glow tonight."); err != nil {
		t.Fatalf("UpdateDialogue error: %v", err)
	}
	if err := f.svc.ProduceAudio(context.Background(), id, types.VoiceKore, audio.DefaultMixConfiguration()); err != nil {
		t.Fatalf("ProduceAudio after edit error: %v", err)
	}
	if f.speech.calls != 2 || !strings.HasPrefix(f.speech.text, "Meet Glow tonight.") {
		t.Fatalf("speech calls = %d, text = %q", f.speech.calls, f.speech.text)
	}
}

func startGatedRender(t *testing.T) (*fixture, string, *video.Render, chan struct{}) {
	t.Helper()
	gate := make(chan struct{})
	f := newFixtureWithEncoders(t, gatedFactory{gate: gate})
	id, _ := f.svc.Generate(context.Background(), testParams)
	if err := f.svc.ProduceAudio(context.Background(), id, "", audio.DefaultMixConfiguration()); err != nil {
		t.Fatalf("ProduceAudio error: %v", err)
	}
	rd, err := f.svc.Render(context.Background(), id, video.ClockVirtual, false)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	return f, id, rd, gate
}

func waitDone(t *testing.T, rd *video.Render) {
	t.Helper()
	select {
	case <-rd.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("render never finished")
	}
}

func TestDialogueEditCancelsRunningRender(t *testing.T) {
	f, id, rd, gate := startGatedRender(t)

	if err := f.svc.UpdateDialogue(id, 2, "Order today."); err != nil {
		t.Fatalf("UpdateDialogue error: %v", err)
	}
	close(gate)
	waitDone(t, rd)

	if _, err := rd.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("render error = %v; want context.Canceled", err)
	}
	if _, err := f.svc.Artifact(id); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("Artifact error = %v; want ErrNoArtifact", err)
	}
	snap, _ := f.svc.Status(id)
	if snap.Stage != StageReady || snap.HasAudio {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCancelRender(t *testing.T) {
	f, id, rd, _ := startGatedRender(t)

	if err := f.svc.CancelRender(id); err != nil {
		t.Fatalf("CancelRender error: %v", err)
	}
	waitDone(t, rd)
	if _, err := rd.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("render error = %v; want context.Canceled", err)
	}
	snap, _ := f.svc.Status(id)
	if snap.Stage != StageReady || !snap.HasAudio {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := f.svc.Artifact(id); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("Artifact error = %v; want ErrNoArtifact", err)
	}

	if err := f.svc.CancelRender(id); !errors.Is(err, ErrNoRender) {
		t.Fatalf("second CancelRender error = %v; want ErrNoRender", err)
	}
	if err := f.svc.CancelRender("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id error = %v", err)
	}
}

func TestRegenerateImage(t *testing.T) {
	f := newFixture(t)
	f.images.failOn["p1"] = true
	id, _ := f.svc.Generate(context.Background(), testParams)

	if _, err := f.svc.SegmentImage(id, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SegmentImage before regenerate error = %v", err)
	}
	if _, err := f.svc.RegenerateImage(context.Background(), id, 1, "close-up on the dropper"); err != nil {
		t.Fatalf("RegenerateImage error: %v", err)
	}
	if _, err := f.svc.SegmentImage(id, 1); err != nil {
		t.Fatalf("SegmentImage error: %v", err)
	}
	p, _ := f.svc.Get(id)
	if len(p.SegmentResults()) != 0 {
		t.Fatalf("segment results = %+v; want cleared", p.SegmentResults())
	}
	if p.Script().Segments[1].ImagePrompt != "close-up on the dropper" {
		t.Fatalf("prompt = %q", p.Script().Segments[1].ImagePrompt)
	}
}

func TestRestoreFromHistory(t *testing.T) {
	f := newFixture(t)
	id, _ := f.svc.Generate(context.Background(), testParams)

	restored, err := f.svc.Restore(context.Background(), id)
	if err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if restored == id {
		t.Fatal("restore reused the original production id")
	}
	snap, _ := f.svc.Status(restored)
	if snap.Stage != StageReady || snap.Script.Title != "Glow Serum" {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, seg := range snap.Segments {
		if seg.HasImage {
			t.Fatal("restored production carries images")
		}
	}
	if _, err := f.svc.Restore(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Restore(missing) error = %v", err)
	}
}

func TestLogRingBuffer(t *testing.T) {
	p := newProduction("abc", testParams)
	for i := 0; i < 75; i++ {
		p.AddLog("line %d", i)
	}
	logs := p.Snapshot().Logs
	if len(logs) != 50 {
		t.Fatalf("kept %d log entries; want 50", len(logs))
	}
	if logs[0].Message != "line 25" || logs[49].Message != fmt.Sprintf("line %d", 74) {
		t.Fatalf("window = %q .. %q", logs[0].Message, logs[49].Message)
	}
}
