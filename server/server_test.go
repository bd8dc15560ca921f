package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	inkframe "github.com/ahmed-com/inkframe"
	"github.com/ahmed-com/inkframe/imaging"
	"github.com/ahmed-com/inkframe/ingest"
	"github.com/ahmed-com/inkframe/photo"
	"github.com/ahmed-com/inkframe/settings"
)

type fakeEngine struct {
	advanceOK bool
	retreatOK bool
	jumps     []string
	known     map[string]bool
	status    inkframe.ScheduleStatus
}

func (f *fakeEngine) Advance(ctx context.Context) bool { return f.advanceOK }
func (f *fakeEngine) Retreat(ctx context.Context) bool { return f.retreatOK }
func (f *fakeEngine) JumpTo(ctx context.Context, photoID string) bool {
	f.jumps = append(f.jumps, photoID)
	return f.known[photoID]
}
func (f *fakeEngine) Status(ctx context.Context) inkframe.ScheduleStatus { return f.status }

type fakeTimer struct {
	starts  []int
	stops   int
	running bool
}

func (f *fakeTimer) Start(intervalMinutes int) bool {
	f.starts = append(f.starts, intervalMinutes)
	f.running = true
	return true
}
func (f *fakeTimer) Stop() bool {
	f.stops++
	was := f.running
	f.running = false
	return was
}
func (f *fakeTimer) Running() bool { return f.running }

type fakeSink struct {
	cmds []inkframe.Command
}

func (f *fakeSink) Submit(cmd inkframe.Command) bool {
	f.cmds = append(f.cmds, cmd)
	return true
}

type memStore struct {
	photos map[string]*photo.Photo
}

func newMemStore() *memStore { return &memStore{photos: make(map[string]*photo.Photo)} }

func (m *memStore) CreatePhoto(ctx context.Context, p *photo.Photo) error {
	m.photos[p.ID] = p
	return nil
}
func (m *memStore) GetPhoto(ctx context.Context, id string) (*photo.Photo, error) {
	p, ok := m.photos[id]
	if !ok {
		return nil, fmt.Errorf("photo not found: %s", id)
	}
	return p, nil
}
func (m *memStore) UpdatePhoto(ctx context.Context, p *photo.Photo) error {
	m.photos[p.ID] = p
	return nil
}
func (m *memStore) DeletePhoto(ctx context.Context, id string) error {
	delete(m.photos, id)
	return nil
}
func (m *memStore) ListPhotos(ctx context.Context) ([]*photo.Photo, error) {
	out := make([]*photo.Photo, 0, len(m.photos))
	for _, p := range m.photos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (m *memStore) OrderedIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.photos))
	for id := range m.photos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
func (m *memStore) CountPhotos(ctx context.Context) (int, error) { return len(m.photos), nil }
func (m *memStore) Close() error                                 { return nil }

type fakeBusy struct {
	busy bool
}

func (f *fakeBusy) Busy() bool { return f.busy }

type fixture struct {
	engine *fakeEngine
	timer  *fakeTimer
	sink   *fakeSink
	store  *memStore
	cfg    *settings.Store
	busy   *fakeBusy
	h      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	f := &fixture{
		engine: &fakeEngine{advanceOK: true, retreatOK: true, known: map[string]bool{}},
		timer:  &fakeTimer{},
		sink:   &fakeSink{},
		store:  newMemStore(),
		cfg:    settings.NewStore(filepath.Join(root, "settings.json")),
		busy:   &fakeBusy{},
	}

	incoming := filepath.Join(root, "incoming")
	ingestor := ingest.New(f.store, ingest.Config{
		IncomingDir:  incoming,
		OriginalsDir: filepath.Join(root, "originals"),
		DisplayDir:   filepath.Join(root, "display"),
		ThumbsDir:    filepath.Join(root, "thumbs"),
	})

	f.h = New(Deps{
		Engine:      f.engine,
		Timer:       f.timer,
		Commands:    f.sink,
		Photos:      f.store,
		Settings:    f.cfg,
		Uploader:    ingestor,
		Display:     f.busy,
		IncomingDir: incoming,
	}).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) successResponse {
	t.Helper()
	var resp successResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestDisplayNext(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/display/next", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if !decodeSuccess(t, rec).Success {
		t.Error("Expected success")
	}

	f.engine.advanceOK = false
	rec = f.do(t, http.MethodPost, "/api/display/next", "")
	if decodeSuccess(t, rec).Success {
		t.Error("Empty library advance should report failure")
	}
}

func TestDisplayNextWrongMethod(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/display/next", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestDisplayPrev(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/display/prev", "")
	if !decodeSuccess(t, rec).Success {
		t.Error("Expected success")
	}
}

func TestDisplayShow(t *testing.T) {
	f := newFixture(t)
	f.engine.known["photo_abc"] = true

	rec := f.do(t, http.MethodPost, "/api/display/show/photo_abc", "")
	if rec.Code != http.StatusOK || !decodeSuccess(t, rec).Success {
		t.Errorf("Expected success for known photo, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/display/show/photo_nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown photo, got %d", rec.Code)
	}

	if len(f.engine.jumps) != 2 || f.engine.jumps[0] != "photo_abc" {
		t.Errorf("Unexpected jump calls: %v", f.engine.jumps)
	}
}

func TestDisplayInfo(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/display/info", "")
	if !decodeSuccess(t, rec).Success {
		t.Error("Expected success")
	}
	if len(f.sink.cmds) != 1 || f.sink.cmds[0].Kind != inkframe.CommandShowInfo {
		t.Errorf("Expected one ShowInfo command, got %v", f.sink.cmds)
	}
}

func TestSlideshowStartUsesStoredInterval(t *testing.T) {
	f := newFixture(t)
	f.store.photos["photo_a"] = &photo.Photo{ID: "photo_a"}
	if _, err := f.cfg.Update(map[string]any{"slideshow": map[string]any{"interval_minutes": 30, "enabled": false}}); err != nil {
		t.Fatalf("Failed to seed settings: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/slideshow/start", "")
	if !decodeSuccess(t, rec).Success {
		t.Fatal("Expected success")
	}

	if len(f.timer.starts) != 1 || f.timer.starts[0] != 30 {
		t.Errorf("Expected timer started at 30min, got %v", f.timer.starts)
	}
	if !f.cfg.Load().Slideshow.Enabled {
		t.Error("Start should persist enabled=true")
	}
}

func TestSlideshowStartEmptyLibrary(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/slideshow/start", "")
	if decodeSuccess(t, rec).Success {
		t.Error("Start with no photos should report failure")
	}
	if len(f.timer.starts) != 0 {
		t.Errorf("Timer should not be started, got %v", f.timer.starts)
	}
}

func TestSlideshowStartBodyOverride(t *testing.T) {
	f := newFixture(t)
	f.store.photos["photo_a"] = &photo.Photo{ID: "photo_a"}

	rec := f.do(t, http.MethodPost, "/api/slideshow/start", `{"interval_minutes": 15}`)
	if !decodeSuccess(t, rec).Success {
		t.Fatal("Expected success")
	}

	if len(f.timer.starts) != 1 || f.timer.starts[0] != 15 {
		t.Errorf("Expected timer started at 15min, got %v", f.timer.starts)
	}
	if got := f.cfg.Load().Slideshow.IntervalMinutes; got != 15 {
		t.Errorf("Expected interval 15 persisted, got %d", got)
	}
}

func TestSlideshowStop(t *testing.T) {
	f := newFixture(t)
	f.timer.running = true

	rec := f.do(t, http.MethodPost, "/api/slideshow/stop", "")
	if !decodeSuccess(t, rec).Success {
		t.Fatal("Expected success")
	}
	if f.timer.stops != 1 {
		t.Errorf("Expected one stop call, got %d", f.timer.stops)
	}
	if f.cfg.Load().Slideshow.Enabled {
		t.Error("Stop should persist enabled=false")
	}
}

func TestSlideshowStatus(t *testing.T) {
	f := newFixture(t)
	next := "2026-08-23T12:00:00Z"
	f.engine.status = inkframe.ScheduleStatus{
		Running:         true,
		Enabled:         true,
		IntervalMinutes: 60,
		Order:           inkframe.OrderRandom,
		PhotoCount:      7,
		NextRun:         &next,
	}

	rec := f.do(t, http.MethodGet, "/api/slideshow/status", "")
	var st inkframe.ScheduleStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if !st.Running || st.PhotoCount != 7 || st.NextRun == nil || *st.NextRun != next {
		t.Errorf("Unexpected status: %+v", st)
	}
}

func TestListPhotos(t *testing.T) {
	f := newFixture(t)
	taken := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.store.photos["photo_a"] = &photo.Photo{
		ID: "photo_a", Filename: "a.jpg", Width: 800, Height: 600,
		FileSize: 2048, MimeType: "image/jpeg", DateTaken: &taken,
		UploadedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	rec := f.do(t, http.MethodGet, "/api/photos", "")
	var views []photoView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("Failed to decode photo list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("Expected 1 photo, got %d", len(views))
	}
	v := views[0]
	if v.ID != "photo_a" || v.Size == "" || v.DateTaken == "" {
		t.Errorf("Unexpected view: %+v", v)
	}
}

func TestDeletePhoto(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	orig := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(orig, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	f.store.photos["photo_a"] = &photo.Photo{ID: "photo_a", Filename: "a.jpg", OriginalPath: orig}

	rec := f.do(t, http.MethodDelete, "/api/photos/photo_a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if _, ok := f.store.photos["photo_a"]; ok {
		t.Error("Record should be deleted")
	}
	if _, err := os.Stat(orig); !os.IsNotExist(err) {
		t.Error("Original file should be removed")
	}
}

func TestDeletePhotoNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/photos/photo_nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetSettings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/settings", "")
	var cfg settings.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if cfg.Slideshow.IntervalMinutes != inkframe.DefaultIntervalMinutes {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/settings", `{"display": {"saturation": 0.8}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var cfg settings.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if cfg.Display.Saturation != 0.8 {
		t.Errorf("Expected saturation 0.8, got %v", cfg.Display.Saturation)
	}
	if cfg.Display.FitMode != "contain" {
		t.Error("Untouched keys should keep their values")
	}
}

func TestUpdateSettingsBadBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/settings", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "upload.png")
	if err := imaging.SavePNG(path, img); err != nil {
		t.Fatalf("Failed to encode test photo: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read test photo: %v", err)
	}
	return data
}

func (f *fixture) upload(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to build multipart form: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("Failed to write multipart form: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/photos/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func TestUploadPhoto(t *testing.T) {
	f := newFixture(t)

	rec := f.upload(t, "beach.png", pngBytes(t, 320, 240))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.Photo.ID == "" {
		t.Errorf("Expected a photo record in the response, got %+v", resp)
	}
	if resp.Photo.Width != 320 || resp.Photo.Height != 240 {
		t.Errorf("Expected 320x240, got %dx%d", resp.Photo.Width, resp.Photo.Height)
	}

	p, ok := f.store.photos[resp.Photo.ID]
	if !ok {
		t.Fatal("Uploaded photo should be registered in the store")
	}
	for _, path := range []string{p.OriginalPath, p.DisplayPath, p.ThumbnailPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected artifact %s: %v", path, err)
		}
	}
}

func TestUploadPhotoTooLarge(t *testing.T) {
	f := newFixture(t)
	if _, err := f.cfg.Update(map[string]any{"upload": map[string]any{"max_file_size_mb": 0}}); err != nil {
		t.Fatalf("Failed to seed settings: %v", err)
	}

	rec := f.upload(t, "beach.png", pngBytes(t, 64, 64))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rec.Code)
	}
	if len(f.store.photos) != 0 {
		t.Error("Oversize upload must not be registered")
	}
}

func TestUploadPhotoNoFile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/photos/upload", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestUploadPhotoUnsupportedType(t *testing.T) {
	f := newFixture(t)

	rec := f.upload(t, "notes.txt", []byte("not a photo"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if len(f.store.photos) != 0 {
		t.Error("Unsupported upload must not be registered")
	}
}

func TestUploadFirstPhotoAutoStartsSlideshow(t *testing.T) {
	f := newFixture(t)
	data := pngBytes(t, 64, 64)

	rec := f.upload(t, "first.png", data)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if len(f.timer.starts) != 1 || f.timer.starts[0] != inkframe.DefaultIntervalMinutes {
		t.Errorf("First photo should auto-start the slideshow, got %v", f.timer.starts)
	}

	// Subsequent uploads leave the timer alone
	rec = f.upload(t, "second.png", data)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if len(f.timer.starts) != 1 {
		t.Errorf("Only the first photo should auto-start, got %v", f.timer.starts)
	}
}

func TestUploadAutoStartRespectsSetting(t *testing.T) {
	f := newFixture(t)
	if _, err := f.cfg.Update(map[string]any{"slideshow": map[string]any{"auto_start": false}}); err != nil {
		t.Fatalf("Failed to seed settings: %v", err)
	}

	rec := f.upload(t, "first.png", pngBytes(t, 64, 64))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if len(f.timer.starts) != 0 {
		t.Errorf("auto_start=false should not start the slideshow, got %v", f.timer.starts)
	}
}

func TestDeleteBulk(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	for _, id := range []string{"photo_a", "photo_b", "photo_c"} {
		orig := filepath.Join(dir, id+".jpg")
		if err := os.WriteFile(orig, []byte("x"), 0o644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
		f.store.photos[id] = &photo.Photo{ID: id, Filename: id + ".jpg", OriginalPath: orig}
	}

	rec := f.do(t, http.MethodPost, "/api/photos/delete-bulk", `{"ids": ["photo_a", "photo_c", "photo_nope"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp bulkDeleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", resp.Deleted)
	}

	if _, ok := f.store.photos["photo_b"]; !ok {
		t.Error("Unlisted photo should survive")
	}
	for _, id := range []string{"photo_a", "photo_c"} {
		if _, ok := f.store.photos[id]; ok {
			t.Errorf("Photo %s should be deleted", id)
		}
		if _, err := os.Stat(filepath.Join(dir, id+".jpg")); !os.IsNotExist(err) {
			t.Errorf("Artifacts of %s should be removed", id)
		}
	}
}

func TestDeleteBulkNoIDs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/photos/delete-bulk", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing ids, got %d", rec.Code)
	}
}

func TestSystemStatus(t *testing.T) {
	f := newFixture(t)
	f.engine.status = inkframe.ScheduleStatus{Running: true, PhotoCount: 4}
	f.busy.busy = true

	rec := f.do(t, http.MethodGet, "/api/status", "")
	var st statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if !st.Slideshow.Running || st.Photos.Count != 4 {
		t.Errorf("Unexpected status: %+v", st)
	}
	if !st.DisplayBusy {
		t.Error("Expected display_busy to reflect the guard")
	}
	if st.Display.FitMode != "contain" {
		t.Errorf("Expected display settings in status, got %+v", st.Display)
	}
}

func TestUpdateSettingsReschedulesRunningSlideshow(t *testing.T) {
	f := newFixture(t)
	f.timer.running = true

	f.do(t, http.MethodPost, "/api/settings", `{"slideshow": {"interval_minutes": 180}}`)
	if len(f.timer.starts) != 1 || f.timer.starts[0] != 180 {
		t.Errorf("Expected reschedule at 180min, got %v", f.timer.starts)
	}

	// A stopped slideshow is left alone
	f.timer.running = false
	f.timer.starts = nil
	f.do(t, http.MethodPost, "/api/settings", `{"slideshow": {"interval_minutes": 30}}`)
	if len(f.timer.starts) != 0 {
		t.Errorf("Stopped slideshow should not be started by a settings change, got %v", f.timer.starts)
	}
}
