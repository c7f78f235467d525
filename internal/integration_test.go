package internal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
	"github.com/sweeney/foosball-sensor/internal/events"
	"github.com/sweeney/foosball-sensor/internal/game"
	"github.com/sweeney/foosball-sensor/internal/gpio"
	"github.com/sweeney/foosball-sensor/internal/mqtt"
	"github.com/sweeney/foosball-sensor/internal/status"
)

var tablePins = []gpio.Pin{
	{Role: gpio.RoleBlueGoal, Offset: 17},
	{Role: gpio.RoleRedGoal, Offset: 27},
	{Role: gpio.RoleBallDrop1, Offset: 22},
	{Role: gpio.RoleBallDrop2, Offset: 23},
	{Role: gpio.RoleReset, Offset: 24},
}

// table wires the fake sensors through the real debouncers, queue and
// state machine, the way the daemon does.
type table struct {
	t       *testing.T
	ctx     context.Context
	src     *gpio.FakeSource
	clock   *quartz.Mock
	queue   *events.Queue
	sensors []*events.Sensor
	machine *game.Machine
	sink    *broadcast.FakeSink
	pub     *mqtt.FakePublisher
	sinks   broadcast.Multi
}

func newTable(t *testing.T, maxScore uint32) *table {
	t.Helper()
	tb := &table{
		t:       t,
		ctx:     context.Background(),
		src:     gpio.NewFakeSource(),
		clock:   quartz.NewMock(t),
		queue:   events.NewQueue(),
		machine: game.NewMachine(maxScore),
		sink:    broadcast.NewFakeSink(),
		pub:     mqtt.NewFakePublisher(),
	}
	tb.sinks = broadcast.Multi{tb.sink, tb.pub}

	sensors, err := events.Attach(tb.src, tablePins, tb.queue, tb.clock, events.DefaultWindow, events.FromLastEdge)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	tb.sensors = sensors
	return tb
}

// edge fires one raw edge on role and then lets wait pass.
func (tb *table) edge(role gpio.Role, wait time.Duration) {
	tb.t.Helper()
	if !tb.src.Trigger(role) {
		tb.t.Fatalf("%s not watched", role)
	}
	if wait > 0 {
		tb.clock.Advance(wait).MustWait(tb.ctx)
	}
}

// tick runs one iteration of the game loop.
func (tb *table) tick() game.Data {
	tb.t.Helper()
	e, ok := tb.queue.TryPop()
	if !ok {
		e = game.EventNone
	}
	if win := tb.machine.Next(e); win != nil {
		if err := tb.sinks.Announce(*win); err != nil {
			tb.t.Logf("announce error (ignored): %v", err)
		}
	}
	snap := tb.machine.Data()
	if err := tb.sinks.Broadcast(snap); err != nil {
		tb.t.Logf("broadcast error (ignored): %v", err)
	}
	return snap
}

func TestIntegrationFullGame(t *testing.T) {
	tb := newTable(t, 2)

	tb.edge(gpio.RoleBallDrop1, time.Second)
	tb.tick()
	tb.tick()
	tb.tick()

	// Blue scores with a bouncy sensor: one goal only.
	tb.edge(gpio.RoleBlueGoal, 5*time.Millisecond)
	tb.edge(gpio.RoleBlueGoal, 5*time.Millisecond)
	tb.edge(gpio.RoleBlueGoal, time.Second)
	if got := tb.tick(); got != (game.Data{Time: 2, BlueGoals: 1}) {
		t.Fatalf("after first goal: %+v", got)
	}
	if tb.queue.Len() != 0 {
		t.Fatalf("bounces leaked into the queue: %d pending", tb.queue.Len())
	}

	// Second ball-drop sensor restarts play.
	tb.edge(gpio.RoleBallDrop2, time.Second)
	tb.tick()
	tb.tick()

	tb.edge(gpio.RoleBlueGoal, time.Second)
	if got := tb.tick(); got != (game.Data{}) {
		t.Fatalf("expected reset after win, got %+v", got)
	}

	if len(tb.sink.Wins) != 1 || tb.sink.Wins[0].String() != "Blue Wins!" {
		t.Fatalf("wins: %+v", tb.sink.Wins)
	}
	if tb.sink.Wins[0].Final != (game.Data{Time: 4, BlueGoals: 2}) {
		t.Errorf("final score: %+v", tb.sink.Wins[0].Final)
	}
	if len(tb.pub.Wins) != 1 {
		t.Errorf("mqtt should get the win too, got %d", len(tb.pub.Wins))
	}
	if len(tb.sink.Snapshots) != 7 || len(tb.pub.Snapshots) != 7 {
		t.Errorf("expected one snapshot per tick, got %d/%d", len(tb.sink.Snapshots), len(tb.pub.Snapshots))
	}

	counts := events.CountsByRole(tb.sensors)
	if c := counts[gpio.RoleBlueGoal]; c.Accepted != 2 || c.Suppressed != 2 {
		t.Errorf("blue goal counts: %+v", c)
	}
}

func TestIntegrationGoalWhilePausedIsIgnored(t *testing.T) {
	tb := newTable(t, 5)

	tb.edge(gpio.RoleBallDrop1, time.Second)
	tb.tick()
	tb.edge(gpio.RoleRedGoal, time.Second)
	tb.tick()

	// Ball rolls back over the sensor before anyone drops it again.
	tb.edge(gpio.RoleRedGoal, time.Second)
	if got := tb.tick(); got != (game.Data{RedGoals: 1}) {
		t.Errorf("paused game should swallow goals, got %+v", got)
	}
}

func TestIntegrationResetSensor(t *testing.T) {
	tb := newTable(t, 5)

	tb.edge(gpio.RoleBallDrop1, time.Second)
	tb.tick()
	tb.tick()
	tb.edge(gpio.RoleBlueGoal, time.Second)
	tb.tick()
	tb.edge(gpio.RoleReset, time.Second)
	if got := tb.tick(); got != (game.Data{}) {
		t.Errorf("reset should zero the board, got %+v", got)
	}
	if _, ok := tb.machine.State().(game.Reset); !ok {
		t.Errorf("expected RESET, got %s", tb.machine.State().Name())
	}
	if len(tb.sink.Wins) != 0 {
		t.Error("reset is not a win")
	}
}

func TestIntegrationConcurrentSensorsOneEventPerTick(t *testing.T) {
	tb := newTable(t, 10)

	// Every sensor fires at once from its own goroutine.
	roles := []gpio.Role{gpio.RoleBallDrop1, gpio.RoleBlueGoal, gpio.RoleRedGoal, gpio.RoleBallDrop2}
	var wg sync.WaitGroup
	for _, role := range roles {
		wg.Add(1)
		go func(r gpio.Role) {
			defer wg.Done()
			tb.src.Trigger(r)
		}(role)
	}
	wg.Wait()

	if tb.queue.Len() != len(roles) {
		t.Fatalf("expected %d queued events, got %d", len(roles), tb.queue.Len())
	}
	for i := len(roles); i > 0; i-- {
		tb.tick()
		if tb.queue.Len() != i-1 {
			t.Errorf("one event per tick: expected %d pending, got %d", i-1, tb.queue.Len())
		}
	}
}

func TestIntegrationBroadcastFailureDoesNotAffectGame(t *testing.T) {
	tb := newTable(t, 5)
	tb.sink.BroadcastError = errors.New("no viewers")
	tb.pub.BroadcastError = errors.New("broker down")

	tb.edge(gpio.RoleBallDrop1, time.Second)
	tb.tick()
	tb.tick()
	tb.tick()

	if got := tb.machine.Data(); got != (game.Data{Time: 2}) {
		t.Errorf("game state should advance regardless, got %+v", got)
	}

	tb.sink.BroadcastError = nil
	tb.pub.BroadcastError = nil
	if got := tb.tick(); got != (game.Data{Time: 3}) {
		t.Errorf("got %+v", got)
	}
	if last, ok := tb.sink.Last(); !ok || last != (game.Data{Time: 3}) {
		t.Errorf("next successful broadcast should be current, got %+v", last)
	}
}

func TestIntegrationSnapshotPayload(t *testing.T) {
	tb := newTable(t, 5)
	tb.edge(gpio.RoleBallDrop1, time.Second)
	tb.tick()
	tb.tick()
	tb.edge(gpio.RoleRedGoal, time.Second)
	tb.tick()

	var decoded map[string]uint64
	if err := json.Unmarshal(tb.sink.Payloads[len(tb.sink.Payloads)-1], &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := map[string]uint64{"time": 1, "blue_goals": 0, "red_goals": 1}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("%s: got %d, want %d", k, decoded[k], v)
		}
	}
	if len(decoded) != 3 {
		t.Errorf("expected exactly 3 fields, got %v", decoded)
	}
}

func TestIntegrationLifecycleEvents(t *testing.T) {
	tb := newTable(t, 5)
	tracker := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{MaxScore: 5})

	snap := tracker.Snapshot()
	if err := tb.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}); err != nil {
		t.Fatalf("startup: %v", err)
	}

	tb.edge(gpio.RoleBallDrop1, time.Second)
	for i := 0; i < 3; i++ {
		d := tb.tick()
		tracker.Update(tb.machine.State().Name(), d, tb.queue.Len())
	}
	tracker.SetSensors(events.CountsByRole(tb.sensors))

	snap = tracker.Snapshot()
	if err := tb.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventShutdown,
		Reason:     "SIGTERM",
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, "SIGTERM"),
	}); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if len(tb.pub.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(tb.pub.SystemEvents))
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(tb.pub.SystemPayloads[1], &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: %s/%s", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.State != "RUNNING" || sj.Status.Game.Time != 2 || sj.Status.Ticks != 3 {
		t.Errorf("status: %+v", sj.Status)
	}
	if len(sj.Status.Sensors) != len(tablePins) {
		t.Errorf("expected %d sensors, got %d", len(tablePins), len(sj.Status.Sensors))
	}
}
