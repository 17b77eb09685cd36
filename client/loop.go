// Package client ties the pieces together: it owns the configuration and
// recording state, blocks on the daemon for key-state snapshots, decodes
// them into named transitions and hands each one to the dispatcher or the
// active recording session.
package client

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/g15tools/g15keys/daemon"
	"github.com/g15tools/g15keys/keystate"
	"github.com/g15tools/g15keys/profile"
)

// Daemon is the loop's view of the protocol client.
type Daemon interface {
	Connect(ctx context.Context) error
	Cmd(op daemon.Opcode, val uint8) (uint32, error)
	WaitKey() (uint32, error)
	Close() error
}

// Options configures a Loop.
type Options struct {
	Conn       Daemon
	Config     *profile.Config
	ConfigPath string
	Dispatcher *Dispatcher // optional; built from Conn/Injector when nil
	NewCapture func() (CaptureSession, error)
	Logger     *slog.Logger
}

// Loop is the orchestrator. It owns Config, the active profile and at most
// one recording session, all mutated only on the loop goroutine.
type Loop struct {
	conn       Daemon
	state      *State
	disp       *Dispatcher
	rec        *Recorder
	newCapture func() (CaptureSession, error)
	configPath string
	logger     *slog.Logger

	reload        chan struct{}
	pendingReload bool
}

func New(opts Options) *Loop {
	l := &Loop{
		conn:       opts.Conn,
		state:      NewState(opts.Config),
		disp:       opts.Dispatcher,
		newCapture: opts.NewCapture,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		reload:     make(chan struct{}, 1),
	}
	if l.disp == nil {
		l.disp = NewDispatcher(l.state, opts.Conn, nil, opts.Logger)
	}
	l.disp.state = l.state
	l.disp.startRecording = l.startRecording
	l.disp.reconnect = l.reconnect
	return l
}

// State exposes the loop's state for tests and the process layer.
func (l *Loop) State() *State { return l.state }

// RequestReload queues a configuration reload. Reloads are applied between
// event-processing iterations; requesting is safe from any goroutine.
func (l *Loop) RequestReload() {
	select {
	case l.reload <- struct{}{}:
	default:
	}
}

// Run connects and processes key-state snapshots until ctx is cancelled or
// a fatal protocol error occurs. A lost connection is never fatal; the loop
// reconnects indefinitely.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.reconnect(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = l.conn.Close()
	}()

	for {
		keys, err := l.conn.WaitKey()
		if err != nil {
			cont, rerr := l.handleReadError(ctx, err)
			if !cont {
				return rerr
			}
			continue
		}
		l.applyControl()
		l.handleSnapshot(ctx, keys)

		// The daemon pushes each key state a second time. The payload is
		// unused, but a failed read still means the connection is gone.
		if _, err := l.conn.WaitKey(); err != nil {
			if cont, rerr := l.handleReadError(ctx, err); !cont {
				return rerr
			}
		}
	}
}

func (l *Loop) handleReadError(ctx context.Context, err error) (cont bool, out error) {
	if errors.Is(err, daemon.ErrClosed) || ctx.Err() != nil {
		l.logger.Info("shutting down")
		return false, nil
	}
	if errors.Is(err, daemon.ErrDisconnected) {
		l.logger.Warn("daemon connection lost, reconnecting")
		if rerr := l.reconnect(ctx); rerr != nil {
			if errors.Is(rerr, daemon.ErrBadGreeting) {
				return false, rerr
			}
			// context cancelled or closed while retrying
			return false, nil
		}
		return true, nil
	}
	return false, err
}

// reconnect (re)establishes the connection and replays the session setup:
// claiming the extra keys and lighting the default M-key LED.
func (l *Loop) reconnect(ctx context.Context) error {
	if err := l.conn.Connect(ctx); err != nil {
		return err
	}
	if _, err := l.conn.Cmd(daemon.OpKeyHandler, 0); err != nil {
		l.logger.Warn("key handler setup failed", "error", err)
	}
	if _, err := l.conn.Cmd(daemon.OpMKeyLEDs, 1<<2); err != nil {
		l.logger.Warn("initial led setup failed", "error", err)
	}
	return nil
}

// handleSnapshot processes one key-state snapshot. A panic while handling a
// single snapshot is contained here: the loop must outlive any malformed
// event.
func (l *Loop) handleSnapshot(ctx context.Context, keys uint32) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic while handling key state",
				"keys", keys, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	events := keystate.Decode(l.state.Keys, keys)
	l.state.Keys = keys
	for _, ev := range events {
		l.logger.Debug("key transition", "key", ev.Name, "pressed", ev.Pressed)
		l.handleKey(ctx, ev.Name, ev.Pressed)
	}
}

func (l *Loop) handleKey(ctx context.Context, name string, pressed bool) {
	if l.rec != nil {
		l.rec.Drain()
		if pressed {
			return
		}
		// the first release observed while capturing ends the session and
		// owns the recorded macro
		macro := l.rec.Finish()
		l.rec = nil
		l.logger.Info("macro recorded", "key", name, "command", macro)
		l.state.Profile()[name] = profile.Bind(macro)
		if err := l.state.Conf.Save(l.configPath); err != nil {
			l.logger.Error("failed to persist profiles", "error", err)
		}
		if l.pendingReload {
			l.pendingReload = false
			l.applyReload()
		}
		return
	}
	l.disp.HandleKey(ctx, name, pressed)
}

func (l *Loop) startRecording() {
	if l.rec != nil {
		l.logger.Warn("macro recording already in progress")
		return
	}
	if l.newCapture == nil {
		l.logger.Error("event capture unavailable, cannot record")
		return
	}
	session, err := l.newCapture()
	if err != nil {
		l.logger.Error("failed to start event capture", "error", err)
		return
	}
	l.rec = NewRecorder(session)
	l.logger.Info("macro recording started")
}

func (l *Loop) applyControl() {
	select {
	case <-l.reload:
		if l.rec != nil {
			// swapping profiles under a live recording would change which
			// profile the macro lands in; wait for the session to end
			l.pendingReload = true
			l.logger.Info("reload deferred until recording completes")
			return
		}
		l.applyReload()
	default:
	}
}

func (l *Loop) applyReload() {
	conf, err := profile.Load(l.configPath)
	if err != nil {
		l.logger.Warn("reload failed, keeping previous configuration", "error", err)
		return
	}
	l.state.Replace(conf)
	l.logger.Info("configuration reloaded", "profiles", conf.Len(), "active", l.state.Active)
}
