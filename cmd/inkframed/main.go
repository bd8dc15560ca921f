// Command inkframed is the photo frame daemon: it serves the HTTP API,
// ingests photos dropped into the incoming directory, runs the slideshow
// timer and pushes frames to the e-ink panel spool.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/ahmed-com/inkframe/dispatch"
	"github.com/ahmed-com/inkframe/display"
	"github.com/ahmed-com/inkframe/ingest"
	"github.com/ahmed-com/inkframe/maintenance"
	"github.com/ahmed-com/inkframe/metrics"
	badgerstore "github.com/ahmed-com/inkframe/photo/badger"
	"github.com/ahmed-com/inkframe/rotation"
	"github.com/ahmed-com/inkframe/server"
	"github.com/ahmed-com/inkframe/settings"
)

// daemonConfig is the operator-facing YAML config. User-facing settings
// (order, interval, saturation) live in settings.json under the data dir
// and are edited over the API instead.
type daemonConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	DataDir     string `yaml:"data_dir"`
	IncomingDir string `yaml:"incoming_dir"`

	Panel struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"panel"`

	// SpoolPath is where rendered frames land for the panel driver to pick
	// up. Empty runs headless (frames are logged, not written).
	SpoolPath string `yaml:"spool_path"`

	RefreshSchedule string `yaml:"refresh_schedule"`
	Timezone        string `yaml:"timezone"`

	ReapInterval time.Duration `yaml:"reap_interval"`
}

func defaultConfig() daemonConfig {
	cfg := daemonConfig{
		ListenAddr:   ":8000",
		DataDir:      "/var/lib/inkframe",
		ReapInterval: time.Hour,
	}
	cfg.Panel.Width = 800
	cfg.Panel.Height = 480
	return cfg
}

func loadConfig(path string) (daemonConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		klog.Infof("no config at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.IncomingDir == "" {
		cfg.IncomingDir = filepath.Join(cfg.DataDir, "incoming")
	}
	return cfg, nil
}

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "/etc/inkframe/daemon.yaml", "path to the daemon config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		klog.Errorf("inkframed: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.DataDir, cfg.IncomingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	photos, err := badgerstore.NewBadgerStore(filepath.Join(cfg.DataDir, "photos.db"))
	if err != nil {
		return fmt.Errorf("open photo store: %w", err)
	}
	defer photos.Close()

	userCfg := settings.NewStore(filepath.Join(cfg.DataDir, "settings.json"))

	var sink display.Sink
	if cfg.SpoolPath != "" {
		sink = display.NewFileSink(cfg.SpoolPath)
	} else {
		klog.Infof("no spool path configured, running headless")
		sink = display.NullSink{}
	}
	guard := display.NewGuard(sink)

	renderer := display.NewPhotoRenderer(photos, userCfg, guard, cfg.Panel.Width, cfg.Panel.Height)

	collector := metrics.NewInMemoryCollector()
	engine := rotation.NewEngine(photos, renderer, userCfg)
	engine.SetMetrics(collector)

	timer := rotation.NewTimerController(engine)
	engine.SetTimer(timer)
	defer timer.Shutdown()

	queue := dispatch.NewQueue(engine, dispatch.Hooks{
		ShowInfo: func(ctx context.Context) {
			showInfoScreen(ctx, cfg, photos, guard, timer)
		},
	}, 0)
	queue.SetMetrics(collector)
	queue.Start()
	defer queue.Stop()

	ingestor := ingest.New(photos, ingest.Config{
		IncomingDir:  cfg.IncomingDir,
		OriginalsDir: filepath.Join(cfg.DataDir, "originals"),
		DisplayDir:   filepath.Join(cfg.DataDir, "display"),
		ThumbsDir:    filepath.Join(cfg.DataDir, "thumbs"),
	})
	if err := ingestor.ScanIncoming(ctx); err != nil {
		klog.Errorf("incoming scan: %v", err)
	}
	if err := ingestor.Watch(ctx); err != nil {
		return fmt.Errorf("watch incoming: %w", err)
	}

	reaper := maintenance.NewReaper(photos, []string{
		filepath.Join(cfg.DataDir, "originals"),
		filepath.Join(cfg.DataDir, "display"),
		filepath.Join(cfg.DataDir, "thumbs"),
	}, cfg.ReapInterval)
	reaper.Start(ctx)
	defer reaper.Stop()

	refresh, err := maintenance.NewNightlyRefresh(engine, cfg.RefreshSchedule, cfg.Timezone)
	if err != nil {
		return fmt.Errorf("nightly refresh: %w", err)
	}
	if err := refresh.Start(ctx); err != nil {
		return fmt.Errorf("nightly refresh: %w", err)
	}
	defer refresh.Stop()

	if ss := userCfg.Load().Slideshow; ss.Enabled && ss.AutoStart {
		timer.Start(ss.IntervalMinutes)
	}

	api := server.New(server.Deps{
		Engine:      engine,
		Timer:       timer,
		Commands:    queue,
		Photos:      photos,
		Settings:    userCfg,
		Uploader:    ingestor,
		Display:     guard,
		IncomingDir: cfg.IncomingDir,
	})
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("inkframed listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	klog.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// showInfoScreen pushes the status frame to the panel.
func showInfoScreen(ctx context.Context, cfg daemonConfig, photos *badgerstore.BadgerStore, guard *display.Guard, timer *rotation.TimerController) {
	count, err := photos.CountPhotos(ctx)
	if err != nil {
		klog.Errorf("info screen: count photos: %v", err)
	}

	state := "stopped"
	if timer.Running() {
		state = fmt.Sprintf("every %d minutes", timer.Interval())
	}

	port := ""
	if i := strings.LastIndex(cfg.ListenAddr, ":"); i >= 0 {
		port = cfg.ListenAddr[i:]
	}

	lines := []string{
		fmt.Sprintf("Photos: %s", humanize.Comma(int64(count))),
		fmt.Sprintf("Slideshow: %s", state),
		fmt.Sprintf("Address: http://%s%s/", display.SystemIP(), port),
		fmt.Sprintf("Hostname: %s", display.Hostname()),
	}

	img := display.InfoScreen(cfg.Panel.Width, cfg.Panel.Height, "InkFrame", lines)
	if !guard.Render(ctx, img) {
		klog.Warningf("info screen dropped, panel busy")
	}
}
