package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facewatch/facewatch/internal/action"
	"github.com/facewatch/facewatch/internal/capture"
	"github.com/facewatch/facewatch/internal/config"
	"github.com/facewatch/facewatch/internal/server"
	"github.com/facewatch/facewatch/internal/session"
	"github.com/facewatch/facewatch/internal/store"
	"github.com/facewatch/facewatch/internal/tracker"
	"github.com/facewatch/facewatch/internal/tray"
)

type serveOptions struct {
	*rootOptions
	paused bool
	source string
	tray   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run expression tracking with the HTTP dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.paused, "paused", false, "start with tracking paused")
	cmd.Flags().StringVar(&opts.source, "source", "", "override tracking.source (camera|ingest)")
	cmd.Flags().BoolVar(&opts.tray, "tray", false, "show the system tray menu")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	if opts.source != "" {
		cfg.Tracking.Source = opts.source
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("tray") {
		cfg.Tray.Enabled = opts.tray
	}

	log := logger.WithField("component", "main")
	log.Info("FaceWatch - Facial Expression Tracking")

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()
	log.WithField("path", st.Path()).Info("store opened")

	plugins := action.NewManager(cfg.Plugins.Dir, logger)
	if err := plugins.Discover(); err != nil {
		log.WithError(err).Warn("plugin discovery failed")
	}
	dispatcher := action.NewDispatcher(st.Bindings(), plugins, action.NewExecutor(cfg.Plugins.Timeout), logger)

	var cam capture.Camera
	var trk tracker.Tracker
	if cfg.Tracking.Source == config.SourceCamera {
		mp, err := tracker.NewMediaPipeTracker(tracker.Config{
			MaxFaces:      cfg.Tracking.MaxFaces,
			MinConfidence: cfg.Tracking.MinConfidence,
		}, logger)
		if err != nil {
			if errors.Is(err, tracker.ErrUnsupported) {
				return fmt.Errorf("%w: run with --source ingest to accept frames from an external tracker", err)
			}
			return err
		}
		trk = mp
		cam = capture.NewCamera(capture.Options{
			DeviceID: cfg.Tracking.CameraID,
			FPS:      cfg.Tracking.FPS,
			Mirror:   cfg.Tracking.Mirror,
		})
	}

	ctrl, err := session.New(session.Config{
		Store:         st,
		Camera:        cam,
		Tracker:       trk,
		Actions:       dispatcher,
		Source:        cfg.Tracking.Source,
		FPS:           cfg.Tracking.FPS,
		MinConfidence: cfg.Tracking.MinConfidence,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.WithError(err).Warn("close tracking")
		}
		dispatcher.Wait()
	}()

	webDir := cfg.Server.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.WithField("dir", webDir).Info("serving static files")
	}

	srv := server.New(server.Config{
		WebDir:     webDir,
		Store:      st,
		Controller: ctrl,
		Plugins:    plugins,
		Camera:     cam,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	if !opts.paused {
		if err := ctrl.Handle(session.Start); err != nil {
			log.WithError(err).Error("start tracking")
		}
	}

	if cfg.Tray.Enabled {
		runTray(ctx, stop, ctrl, dashboardURL(cfg.Server.Addr), logger)
	} else {
		<-ctx.Done()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	default:
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runTray blocks on the tray event loop until Quit is clicked or ctx ends.
func runTray(ctx context.Context, stop context.CancelFunc, ctrl *session.Controller, url string, logger *logrus.Logger) {
	t := tray.New(ctrl, logger)
	t.OnDashboard(func() {
		if err := openBrowser(url); err != nil {
			logger.WithError(err).Warn("open dashboard")
		}
	})
	t.OnQuit(stop)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.facewatch/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
