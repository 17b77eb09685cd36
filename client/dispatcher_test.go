package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g15tools/g15keys/daemon"
	"github.com/g15tools/g15keys/profile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentCmd struct {
	op  daemon.Opcode
	val uint8
}

// fakeSender records daemon commands and pops scripted errors.
type fakeSender struct {
	cmds []sentCmd
	errs []error
}

func (f *fakeSender) Cmd(op daemon.Opcode, val uint8) (uint32, error) {
	f.cmds = append(f.cmds, sentCmd{op, val})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return 0, nil
}

type injectedEvent struct {
	kind  string
	code  int
	press bool
}

type fakeInjector struct {
	events []injectedEvent
	synced int
	err    error
}

func (f *fakeInjector) Key(code int, press bool) error {
	f.events = append(f.events, injectedEvent{"key", code, press})
	return f.err
}

func (f *fakeInjector) Button(code int, press bool) error {
	f.events = append(f.events, injectedEvent{"button", code, press})
	return f.err
}

func (f *fakeInjector) Sync() error {
	f.synced++
	return nil
}

func (f *fakeInjector) Close() error { return nil }

func testState(t *testing.T) *State {
	t.Helper()
	conf := profile.New()
	conf.Set("default", profile.Profile{
		"G1": profile.Bind("set-leds M2"),
		"G2": profile.Binding{Kind: profile.Sequence, Commands: []string{"set-leds M1", "set-leds M3"}},
		"G3": profile.Binding{Kind: profile.PhasePair, Pressed: "emit k+42", Released: "emit k-42"},
	})
	conf.Set("gaming", profile.Profile{})
	return NewState(conf)
}

func newTestDispatcher(t *testing.T, sender *fakeSender, inj *fakeInjector) (*Dispatcher, *State) {
	t.Helper()
	state := testState(t)
	d := NewDispatcher(state, sender, inj, discardLogger())
	d.startRecording = func() { t.Fatal("unexpected recording start") }
	d.reconnect = func(context.Context) error { t.Fatal("unexpected reconnect"); return nil }
	return d, state
}

func TestStringBindingFiresOnReleaseOnly(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender, nil)

	d.HandleKey(context.Background(), "G1", true)
	assert.Empty(t, sender.cmds)

	d.HandleKey(context.Background(), "G1", false)
	assert.Equal(t, []sentCmd{{daemon.OpMKeyLEDs, 2}}, sender.cmds)
}

func TestSequenceBindingRunsInOrder(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender, nil)

	d.HandleKey(context.Background(), "G2", true)
	assert.Empty(t, sender.cmds)

	d.HandleKey(context.Background(), "G2", false)
	assert.Equal(t, []sentCmd{{daemon.OpMKeyLEDs, 1}, {daemon.OpMKeyLEDs, 4}}, sender.cmds)
}

func TestPhasePairBindingSplitsByPhase(t *testing.T) {
	inj := &fakeInjector{}
	d, _ := newTestDispatcher(t, &fakeSender{}, inj)

	d.HandleKey(context.Background(), "G3", true)
	require.Equal(t, []injectedEvent{{"key", 42, true}}, inj.events)

	d.HandleKey(context.Background(), "G3", false)
	assert.Equal(t, []injectedEvent{{"key", 42, true}, {"key", 42, false}}, inj.events)
	assert.Equal(t, 2, inj.synced)
}

func TestUnboundKeyIsNoOp(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender, nil)

	d.HandleKey(context.Background(), "G18", false)
	assert.Empty(t, sender.cmds)
}

func TestSwitchProfile(t *testing.T) {
	d, state := newTestDispatcher(t, &fakeSender{}, nil)

	d.Execute(context.Background(), "switch-profile nonexistent")
	assert.Equal(t, "default", state.Active, "unknown profile leaves state unchanged")

	d.Execute(context.Background(), "switch-profile gaming")
	assert.Equal(t, "gaming", state.Active)

	// lookups now use the new profile: G1 is unbound there
	sender := d.conn.(*fakeSender)
	d.HandleKey(context.Background(), "G1", false)
	assert.Empty(t, sender.cmds)
}

func TestSetLEDsReconnectsOnDisconnect(t *testing.T) {
	sender := &fakeSender{errs: []error{daemon.ErrDisconnected}}
	d, _ := newTestDispatcher(t, sender, nil)

	reconnected := false
	d.reconnect = func(context.Context) error {
		reconnected = true
		return nil
	}

	d.Execute(context.Background(), "set-leds M2")
	assert.True(t, reconnected)
	// the command is retried after the reconnect
	assert.Equal(t, []sentCmd{{daemon.OpMKeyLEDs, 2}, {daemon.OpMKeyLEDs, 2}}, sender.cmds)
}

func TestSetLEDsSkipsBadKeys(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender, nil)

	d.Execute(context.Background(), "set-leds M9,M1")
	assert.Equal(t, []sentCmd{{daemon.OpMKeyLEDs, 1}}, sender.cmds)
}

func TestEmitAppliesTokensInOrder(t *testing.T) {
	inj := &fakeInjector{}
	d, _ := newTestDispatcher(t, &fakeSender{}, inj)

	var slept []time.Duration
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }

	d.Execute(context.Background(), "emit k+10,s250,k-10,m+1")
	assert.Equal(t, []injectedEvent{
		{"key", 10, true},
		{"key", 10, false},
		{"button", 1, true},
	}, inj.events)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, slept)
	assert.Equal(t, 1, inj.synced)
}

func TestEmitWithoutInjectorIsDropped(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSender{}, nil)
	d.inj = nil
	d.Execute(context.Background(), "emit k+10") // must not panic
}

func TestEmitAbandonsOnInjectError(t *testing.T) {
	inj := &fakeInjector{err: errors.New("device gone")}
	d, _ := newTestDispatcher(t, &fakeSender{}, inj)

	d.Execute(context.Background(), "emit k+10,k-10")
	assert.Len(t, inj.events, 1, "sequence abandoned after the first failure")
	assert.Zero(t, inj.synced)
}

func TestShellFallbackSpawns(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSender{}, nil)

	var got []string
	d.spawn = func(argv []string) error {
		got = argv
		return nil
	}

	d.Execute(context.Background(), `notify-send "hello world"`)
	assert.Equal(t, []string{"notify-send", "hello world"}, got)
}

func TestShellSpawnFailureIsLoggedNotFatal(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSender{}, nil)
	d.spawn = func([]string) error { return errors.New("no such binary") }
	d.Execute(context.Background(), "definitely-not-a-binary") // must not panic
}

func TestRecordStartsSession(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeSender{}, nil)

	started := 0
	d.startRecording = func() { started++ }

	d.Execute(context.Background(), "record")
	assert.Equal(t, 1, started)
}
