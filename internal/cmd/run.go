package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/g15tools/g15keys/client"
	"github.com/g15tools/g15keys/daemon"
	"github.com/g15tools/g15keys/input"
	"github.com/g15tools/g15keys/internal/configpaths"
	"github.com/g15tools/g15keys/internal/log"
	"github.com/g15tools/g15keys/profile"
)

// Run is the default command: connect to g15daemon and dispatch key bindings
// until interrupted. SIGUSR1 and edits to the profiles file both trigger a
// live reload.
type Run struct {
	Daemon        daemon.Config `embed:"" prefix:"daemon."`
	Profiles      string        `help:"Path to the profiles file (default ~/.g15keys/config)" env:"G15KEYS_PROFILES"`
	CaptureDevice string        `help:"Input device to record macros from (auto-detected when empty)" env:"G15KEYS_CAPTURE_DEVICE"`
	Watch         bool          `help:"Reload profiles when the file changes on disk" default:"true" negatable:""`
	DeviceName    string        `help:"Name of the virtual input device used for emit commands" default:"g15keys virtual input"`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer stop()

	path := r.Profiles
	if path == "" {
		var err error
		path, err = configpaths.DefaultProfilePath()
		if err != nil {
			return err
		}
	}
	conf, err := profile.Load(path)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "path", path, "profiles", conf.Len())

	conn := daemon.New(&r.Daemon, daemon.ScreenG15R, logger, rawLogger)

	var inj input.Injector
	if u, err := input.NewUinputInjector(r.DeviceName); err != nil {
		logger.Warn("input injection unavailable", "error", err)
	} else {
		inj = u
		defer func() { _ = u.Close() }()
	}

	loop := client.New(client.Options{
		Conn:       conn,
		Config:     conf,
		ConfigPath: path,
		Dispatcher: client.NewDispatcher(nil, conn, inj, logger),
		NewCapture: func() (client.CaptureSession, error) {
			capture, err := input.OpenCapture(r.CaptureDevice, logger)
			if err != nil {
				return nil, err
			}
			return capture, nil
		},
		Logger: logger,
	})

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGUSR1)
	defer signal.Stop(reload)
	go func() {
		for range reload {
			logger.Info("reload requested")
			loop.RequestReload()
		}
	}()

	if r.Watch {
		stopWatch, err := watchProfiles(path, loop, logger)
		if err != nil {
			logger.Warn("profile watching unavailable", "error", err)
		} else {
			defer stopWatch()
		}
	}

	return loop.Run(ctx)
}

// watchProfiles turns writes to the profiles file into reload requests. The
// directory is watched rather than the file so editors that replace the file
// keep triggering.
func watchProfiles(path string, loop *client.Loop, logger *slog.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Debug("profiles file changed", "op", ev.Op.String())
					loop.RequestReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("profile watcher error", "error", err)
			}
		}
	}()
	return func() { _ = watcher.Close() }, nil
}
