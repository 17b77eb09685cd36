package client

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/g15tools/g15keys/command"
	"github.com/g15tools/g15keys/daemon"
	"github.com/g15tools/g15keys/input"
	"github.com/g15tools/g15keys/keystate"
)

// CommandSender is the slice of the daemon connection the dispatcher needs.
type CommandSender interface {
	Cmd(op daemon.Opcode, val uint8) (uint32, error)
}

// Dispatcher resolves key transitions against the active profile and runs
// the resulting commands. Execution errors never propagate: the offending
// command is logged and dropped, the loop keeps going.
type Dispatcher struct {
	state  *State
	conn   CommandSender
	inj    input.Injector
	logger *slog.Logger

	// hooks owned by the loop
	startRecording func()
	reconnect      func(ctx context.Context) error

	spawn func(argv []string) error
	sleep func(d time.Duration)
}

func NewDispatcher(state *State, conn CommandSender, inj input.Injector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		state:  state,
		conn:   conn,
		inj:    inj,
		logger: logger,
		spawn:  spawnDetached,
		sleep:  time.Sleep,
	}
}

// HandleKey resolves the binding for one key transition and executes it.
func (d *Dispatcher) HandleKey(ctx context.Context, name string, pressed bool) {
	binding, ok := d.state.Profile()[name]
	if !ok {
		return
	}
	for _, cmd := range binding.Resolve(pressed) {
		d.Execute(ctx, cmd)
	}
}

// Execute parses and runs a single command string.
func (d *Dispatcher) Execute(ctx context.Context, raw string) {
	d.logger.Debug("executing command", "command", raw)
	cmd, err := command.Parse(raw)
	if err != nil {
		d.logger.Error("invalid command", "command", raw, "error", err)
		return
	}
	switch cmd.Kind {
	case command.SwitchProfile:
		d.switchProfile(cmd.Profile)
	case command.SetLEDs:
		d.setLEDs(ctx, cmd.Keys)
	case command.Emit:
		d.emit(cmd.Tokens)
	case command.Record:
		d.startRecording()
	case command.Shell:
		if err := d.spawn(cmd.Argv); err != nil {
			d.logger.Error("failed to spawn command", "command", raw, "error", err)
		}
	}
}

func (d *Dispatcher) switchProfile(name string) {
	if !d.state.Conf.Has(name) {
		d.logger.Warn("profile not found", "profile", name)
		return
	}
	d.logger.Info("switching profile", "profile", name)
	d.state.Active = name
}

func (d *Dispatcher) setLEDs(ctx context.Context, keys []string) {
	for _, key := range keys {
		mask, err := keystate.LEDMask(key)
		if err != nil {
			d.logger.Error("cannot set led", "key", key, "error", err)
			continue
		}
		_, err = d.conn.Cmd(daemon.OpMKeyLEDs, mask)
		if errors.Is(err, daemon.ErrDisconnected) {
			if rerr := d.reconnect(ctx); rerr != nil {
				d.logger.Error("reconnect failed", "error", rerr)
				return
			}
			_, err = d.conn.Cmd(daemon.OpMKeyLEDs, mask)
		}
		if err != nil {
			d.logger.Error("led command failed", "key", key, "error", err)
		}
	}
}

func (d *Dispatcher) emit(tokens []command.Token) {
	if d.inj == nil {
		d.logger.Warn("input injection unavailable, dropping emit command")
		return
	}
	for _, t := range tokens {
		var err error
		switch t.Kind {
		case command.SleepToken:
			d.sleep(t.Pause)
		case command.KeyToken:
			err = d.inj.Key(t.Code, t.Press)
		case command.ButtonToken:
			err = d.inj.Button(t.Code, t.Press)
		}
		if err != nil {
			d.logger.Error("inject failed", "token", t.String(), "error", err)
			return
		}
	}
	if err := d.inj.Sync(); err != nil {
		d.logger.Error("inject sync failed", "error", err)
	}
}

// spawnDetached starts argv in its own process group with output discarded,
// so bound commands survive the client and cannot clutter its logs.
func spawnDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
