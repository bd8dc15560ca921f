// Package server exposes the frame's HTTP API: photo upload and library
// management, display triggers, slideshow control, settings and status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	inkframe "github.com/ahmed-com/inkframe"
	"github.com/ahmed-com/inkframe/ingest"
	"github.com/ahmed-com/inkframe/photo"
	"github.com/ahmed-com/inkframe/settings"
)

// RotationEngine is the slice of the rotation engine the handlers call.
// Display triggers go straight to the engine rather than through the command
// queue so the HTTP response can carry the real outcome.
type RotationEngine interface {
	Advance(ctx context.Context) bool
	Retreat(ctx context.Context) bool
	JumpTo(ctx context.Context, photoID string) bool
	Status(ctx context.Context) inkframe.ScheduleStatus
}

// SlideshowTimer controls the recurring slideshow job.
type SlideshowTimer interface {
	Start(intervalMinutes int) bool
	Stop() bool
	Running() bool
}

// CommandSink accepts queued commands (info screen, setup mode).
type CommandSink interface {
	Submit(cmd inkframe.Command) bool
}

// Uploader brings a staged file into the photo library.
type Uploader interface {
	IngestFile(ctx context.Context, path string) (*photo.Photo, error)
}

// DisplayStatus reports whether a panel refresh is in flight.
type DisplayStatus interface {
	Busy() bool
}

// Deps are the collaborators the API server is wired over.
type Deps struct {
	Engine   RotationEngine
	Timer    SlideshowTimer
	Commands CommandSink
	Photos   photo.Store
	Settings *settings.Store
	Uploader Uploader
	Display  DisplayStatus

	// IncomingDir is the ingest drop directory; uploads are staged in a
	// subdirectory the directory watcher ignores, then ingested directly.
	IncomingDir string
}

// Server wires the HTTP API over the frame's collaborators.
type Server struct {
	deps Deps
}

// New creates the API server.
func New(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/photos/upload", s.handleUpload)
	mux.HandleFunc("GET /api/photos", s.handleListPhotos)
	mux.HandleFunc("DELETE /api/photos/{id}", s.handleDeletePhoto)
	mux.HandleFunc("POST /api/photos/delete-bulk", s.handleDeleteBulk)

	mux.HandleFunc("POST /api/display/next", s.handleNext)
	mux.HandleFunc("POST /api/display/prev", s.handlePrev)
	mux.HandleFunc("POST /api/display/show/{id}", s.handleShow)
	mux.HandleFunc("POST /api/display/info", s.handleInfo)

	mux.HandleFunc("POST /api/slideshow/start", s.handleSlideshowStart)
	mux.HandleFunc("POST /api/slideshow/stop", s.handleSlideshowStop)
	mux.HandleFunc("GET /api/slideshow/status", s.handleSlideshowStatus)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/status", s.handleStatus)

	return mux
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Errorf("write response: %v", err)
	}
}

type uploadResponse struct {
	Success bool      `json:"success"`
	Photo   photoView `json:"photo"`
}

// handleUpload accepts a multipart photo upload, stages it next to the
// incoming directory and runs it through the ingest pipeline. Files over the
// configured size limit are rejected with 413.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.deps.Settings.Load().Upload.MaxFileSizeMB) * 1024 * 1024
	// Slack covers multipart framing so the size check below sees the file
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, successResponse{Success: false, Error: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, successResponse{Success: false, Error: "no file provided"})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, successResponse{Success: false, Error: "no file selected"})
		return
	}
	if !ingest.AllowedFile(header.Filename) {
		writeJSON(w, http.StatusBadRequest, successResponse{Success: false, Error: "file type not allowed"})
		return
	}
	if header.Size > maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, successResponse{Success: false, Error: "file too large"})
		return
	}

	wasEmpty := false
	if count, err := s.deps.Photos.CountPhotos(r.Context()); err == nil && count == 0 {
		wasEmpty = true
	}

	// Stage in a dot-directory the incoming watcher ignores, so the watcher
	// never races the direct ingest below. Boot scans still pick up any
	// leftovers from an interrupted upload.
	staging := filepath.Join(s.deps.IncomingDir, ".staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		klog.Errorf("upload staging mkdir: %v", err)
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "failed to process image"})
		return
	}
	dst := filepath.Join(staging, filepath.Base(header.Filename))
	if err := spoolUpload(dst, file); err != nil {
		klog.Errorf("upload spool %s: %v", header.Filename, err)
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "failed to process image"})
		return
	}

	p, err := s.deps.Uploader.IngestFile(r.Context(), dst)
	if err != nil {
		klog.Errorf("upload ingest %s: %v", header.Filename, err)
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "failed to process image"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusBadRequest, successResponse{Success: false, Error: "file type not allowed"})
		return
	}

	// First photo in an empty library kicks the slideshow off
	if wasEmpty {
		if ss := s.deps.Settings.Load().Slideshow; ss.AutoStart {
			s.deps.Timer.Start(ss.IntervalMinutes)
		}
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Photo: viewOf(p)})
}

func spoolUpload(dst string, src io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	ok := s.deps.Engine.Advance(r.Context())
	writeJSON(w, http.StatusOK, successResponse{Success: ok})
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	ok := s.deps.Engine.Retreat(r.Context())
	writeJSON(w, http.StatusOK, successResponse{Success: ok})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.deps.Engine.JumpTo(r.Context(), id) {
		writeJSON(w, http.StatusNotFound, successResponse{Success: false, Error: "photo not found"})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ok := s.deps.Commands.Submit(inkframe.Command{Kind: inkframe.CommandShowInfo})
	writeJSON(w, http.StatusOK, successResponse{Success: ok})
}

func (s *Server) handleSlideshowStart(w http.ResponseWriter, r *http.Request) {
	if count, err := s.deps.Photos.CountPhotos(r.Context()); err == nil && count == 0 {
		writeJSON(w, http.StatusOK, successResponse{Success: false, Error: "no photos to show"})
		return
	}

	interval := s.deps.Settings.Load().Slideshow.IntervalMinutes

	// The body may override the stored interval
	var body struct {
		IntervalMinutes *int `json:"interval_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.IntervalMinutes != nil {
		interval = *body.IntervalMinutes
	}

	if !s.deps.Timer.Start(interval) {
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "could not start slideshow"})
		return
	}

	updates := map[string]any{"slideshow": map[string]any{"enabled": true}}
	if body.IntervalMinutes != nil && inkframe.ValidInterval(*body.IntervalMinutes) {
		updates["slideshow"].(map[string]any)["interval_minutes"] = *body.IntervalMinutes
	}
	if _, err := s.deps.Settings.Update(updates); err != nil {
		klog.Errorf("persist slideshow start: %v", err)
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleSlideshowStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Timer.Stop()
	if _, err := s.deps.Settings.Update(map[string]any{"slideshow": map[string]any{"enabled": false}}); err != nil {
		klog.Errorf("persist slideshow stop: %v", err)
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleSlideshowStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Status(r.Context()))
}

// photoView is the API shape of a library photo.
type photoView struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Size       string `json:"size"`
	MimeType   string `json:"mime_type"`
	Favorite   bool   `json:"favorite"`
	DateTaken  string `json:"date_taken,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}

func viewOf(p *photo.Photo) photoView {
	v := photoView{
		ID:         p.ID,
		Filename:   p.Filename,
		Width:      p.Width,
		Height:     p.Height,
		Size:       humanize.Bytes(uint64(p.FileSize)),
		MimeType:   p.MimeType,
		Favorite:   p.Favorite,
		UploadedAt: p.UploadedAt.UTC().Format(time.RFC3339),
	}
	if p.DateTaken != nil {
		v.DateTaken = p.DateTaken.UTC().Format(time.RFC3339)
	}
	return v
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := s.deps.Photos.ListPhotos(r.Context())
	if err != nil {
		klog.Errorf("list photos: %v", err)
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "could not list photos"})
		return
	}

	views := make([]photoView, 0, len(photos))
	for _, p := range photos {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p, err := s.deps.Photos.GetPhoto(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, successResponse{Success: false, Error: "photo not found"})
		return
	}

	if err := s.deps.Photos.DeletePhoto(r.Context(), id); err != nil {
		klog.Errorf("delete photo %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "could not delete photo"})
		return
	}
	removeArtifacts(p)

	klog.Infof("deleted photo %s (%s)", id, p.Filename)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type bulkDeleteResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

func (s *Server) handleDeleteBulk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IDs == nil {
		writeJSON(w, http.StatusBadRequest, successResponse{Success: false, Error: "no photo IDs provided"})
		return
	}

	deleted := 0
	for _, id := range body.IDs {
		p, err := s.deps.Photos.GetPhoto(r.Context(), id)
		if err != nil {
			continue
		}
		if err := s.deps.Photos.DeletePhoto(r.Context(), id); err != nil {
			klog.Errorf("delete photo %s: %v", id, err)
			continue
		}
		removeArtifacts(p)
		deleted++
	}

	klog.Infof("bulk deleted %d of %d photos", deleted, len(body.IDs))
	writeJSON(w, http.StatusOK, bulkDeleteResponse{Success: true, Deleted: deleted})
}

// removeArtifacts clears a deleted photo's library files best-effort; the
// reaper sweeps up anything missed.
func removeArtifacts(p *photo.Photo) {
	for _, path := range []string{p.OriginalPath, p.DisplayPath, p.ThumbnailPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			klog.Warningf("remove %s: %v", path, err)
		}
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Settings.Load())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, successResponse{Success: false, Error: "invalid JSON body"})
		return
	}

	updated, err := s.deps.Settings.Update(updates)
	if err != nil {
		klog.Errorf("update settings: %v", err)
		writeJSON(w, http.StatusInternalServerError, successResponse{Success: false, Error: "could not save settings"})
		return
	}

	// A new interval takes effect immediately when the slideshow is running
	if _, ok := updates["slideshow"]; ok && s.deps.Timer.Running() {
		s.deps.Timer.Start(updated.Slideshow.IntervalMinutes)
	}

	writeJSON(w, http.StatusOK, updated)
}

// statusResponse is the full system snapshot for the frame's status page.
type statusResponse struct {
	Slideshow inkframe.ScheduleStatus `json:"slideshow"`
	Photos    struct {
		Count int `json:"count"`
	} `json:"photos"`
	Display     settings.DisplaySettings `json:"display"`
	DisplayBusy bool                     `json:"display_busy"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := statusResponse{
		Slideshow: s.deps.Engine.Status(r.Context()),
		Display:   s.deps.Settings.Load().Display,
	}
	st.Photos.Count = st.Slideshow.PhotoCount
	if s.deps.Display != nil {
		st.DisplayBusy = s.deps.Display.Busy()
	}
	writeJSON(w, http.StatusOK, st)
}
