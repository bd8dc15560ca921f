// Package settings persists user-facing frame settings as a JSON file.
//
// The file layout matches the frame's settings.json: top-level sections
// (display, slideshow, upload), each a flat object. Loads merge the file
// over built-in defaults so missing keys never surface; updates deep-merge
// only at the named top-level sections.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/klog/v2"

	inkframe "github.com/ahmed-com/inkframe"
)

// DisplaySettings controls how photos are fitted to the panel.
type DisplaySettings struct {
	Orientation string  `json:"orientation"`
	FitMode     string  `json:"fit_mode"`
	Saturation  float64 `json:"saturation"`
}

// SlideshowSettings controls the rotation engine and timer.
type SlideshowSettings struct {
	Order           string `json:"order"`
	IntervalMinutes int    `json:"interval_minutes"`
	Enabled         bool   `json:"enabled"`
	AutoStart       bool   `json:"auto_start"`
}

// UploadSettings bounds incoming files.
type UploadSettings struct {
	MaxFileSizeMB int `json:"max_file_size_mb"`
}

// Settings is the full settings document.
type Settings struct {
	Display   DisplaySettings   `json:"display"`
	Slideshow SlideshowSettings `json:"slideshow"`
	Upload    UploadSettings    `json:"upload"`
}

// Defaults returns the built-in settings document.
func Defaults() Settings {
	return Settings{
		Display: DisplaySettings{
			Orientation: "horizontal",
			FitMode:     "contain",
			Saturation:  0.5,
		},
		Slideshow: SlideshowSettings{
			Order:           string(inkframe.OrderRandom),
			IntervalMinutes: inkframe.DefaultIntervalMinutes,
			Enabled:         true,
			AutoStart:       true,
		},
		Upload: UploadSettings{
			MaxFileSizeMB: 20,
		},
	}
}

// Store reads and writes the settings file. All operations are serialized
// under one mutex; concurrent HTTP handlers may call it freely.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a settings store backed by the given file path.
// The file is created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the current settings, merged over defaults. A missing or
// unreadable file yields the defaults rather than an error.
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Settings {
	raw, err := s.loadRawLocked()
	if err != nil {
		klog.Warningf("settings unreadable, using defaults: %v", err)
		return Defaults()
	}
	return fromRaw(raw)
}

// loadRawLocked reads the file into a generic map merged over defaults.
func (s *Store) loadRawLocked() (map[string]any, error) {
	merged := toRaw(Defaults())

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return merged, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var onDisk map[string]any
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	mergeSections(merged, onDisk)
	return merged, nil
}

// Save writes the full settings document.
func (s *Store) Save(cfg Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRawLocked(toRaw(cfg))
}

func (s *Store) saveRawLocked(raw map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Update applies a partial update: each named top-level section is
// deep-merged key by key, non-map values replace wholesale. Returns the
// resulting settings.
func (s *Store) Update(updates map[string]any) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.loadRawLocked()
	if err != nil {
		klog.Warningf("settings unreadable, updating over defaults: %v", err)
		raw = toRaw(Defaults())
	}

	mergeSections(raw, updates)

	if err := s.saveRawLocked(raw); err != nil {
		return Settings{}, err
	}
	return fromRaw(raw), nil
}

// OrderMode returns the configured slideshow order. Satisfies the rotation
// engine's config dependency.
func (s *Store) OrderMode() inkframe.OrderMode {
	return inkframe.ParseOrderMode(s.Load().Slideshow.Order)
}

// Slideshow returns the slideshow section.
func (s *Store) Slideshow() SlideshowSettings {
	return s.Load().Slideshow
}

// mergeSections merges src into dst: map values merge one level deep,
// everything else replaces.
func mergeSections(dst, src map[string]any) {
	for key, val := range src {
		srcSection, srcIsMap := val.(map[string]any)
		dstSection, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			for k, v := range srcSection {
				dstSection[k] = v
			}
			continue
		}
		dst[key] = val
	}
}

func toRaw(cfg Settings) map[string]any {
	data, _ := json.Marshal(cfg)
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	return raw
}

func fromRaw(raw map[string]any) Settings {
	data, _ := json.Marshal(raw)
	cfg := Defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		klog.Warningf("settings conversion failed, using defaults: %v", err)
		return Defaults()
	}
	return cfg
}
