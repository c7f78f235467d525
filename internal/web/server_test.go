package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
	"github.com/sweeney/foosball-sensor/internal/events"
	"github.com/sweeney/foosball-sensor/internal/game"
	"github.com/sweeney/foosball-sensor/internal/gpio"
	"github.com/sweeney/foosball-sensor/internal/status"
)

var _ broadcast.Sink = (*Hub)(nil)

type testEnv struct {
	ts      *httptest.Server
	tracker *status.Tracker
	hub     *Hub
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickMs:         1000,
		DebounceMs:     200,
		DebouncePolicy: "last_edge",
		MaxScore:       5,
		Broker:         "tcp://192.168.1.200:1883",
		ListenAddr:     "0.0.0.0:8080",
	}
	logger := log.New(io.Discard)
	tr := status.NewTracker(start, cfg)
	hub := NewHub(tr, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	srv := New(":0", tr, hub, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return &testEnv{ts: ts, tracker: tr, hub: hub}
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForViewers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func readSnapshot(t *testing.T, conn *websocket.Conn) game.Data {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got game.Data
	require.NoError(t, json.Unmarshal(msg, &got))
	return got
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Update("RUNNING", game.Data{Time: 65, BlueGoals: 2, RedGoals: 1}, 1)
	env.tracker.RecordWin(game.Win{Side: game.SideRed, Final: game.Data{Time: 300, BlueGoals: 3, RedGoals: 5}})
	env.tracker.SetSensors(map[gpio.Role]events.Counts{
		gpio.RoleRedGoal:  {Accepted: 5, Suppressed: 7},
		gpio.RoleBlueGoal: {Accepted: 2},
	})
	env.tracker.SetMQTTConnected(true)

	resp, err := http.Get(env.ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))

	assert.Equal(t, "RUNNING", sj.Status.State)
	assert.Equal(t, game.Data{Time: 65, BlueGoals: 2, RedGoals: 1}, sj.Status.Game)
	assert.Equal(t, 1, sj.Status.PendingEvents)
	require.NotNil(t, sj.Status.LastWinner)
	assert.Equal(t, "Red", sj.Status.LastWinner.Side)
	assert.Equal(t, 1, sj.Status.Wins.Red)
	require.Len(t, sj.Status.Sensors, 2)
	assert.Equal(t, "blue_goal", sj.Status.Sensors[0].Role)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, 5, sj.Status.Config.MaxScore)
}

func TestJSONUnknownStateBeforeFirstTick(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.Equal(t, "UNKNOWN", sj.Status.State)
	assert.Nil(t, sj.Status.LastWinner)
}

func TestHTMLEndpoints(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Update("PAUSED", game.Data{Time: 125, BlueGoals: 4, RedGoals: 3}, 0)

	for _, path := range []string{"/", "/index.html"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(env.ts.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			html := string(body)
			assert.Contains(t, html, "PAUSED")
			assert.Contains(t, html, `id="blue-goals">4<`)
			assert.Contains(t, html, `id="red-goals">3<`)
			assert.Contains(t, html, "2:05")
			assert.Contains(t, html, "/ws")
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestViewerReceivesSnapshots(t *testing.T) {
	env := newTestServer(t)
	conn := env.dial(t, "/ws")
	waitForViewers(t, env.hub, 1)

	snaps := []game.Data{{Time: 1}, {Time: 2, BlueGoals: 1}, {Time: 2, BlueGoals: 1, RedGoals: 1}}
	for _, s := range snaps {
		require.NoError(t, env.hub.Broadcast(s))
	}
	for _, want := range snaps {
		assert.Equal(t, want, readSnapshot(t, conn))
	}
}

func TestViewerOnRootPath(t *testing.T) {
	env := newTestServer(t)
	conn := env.dial(t, "/")
	waitForViewers(t, env.hub, 1)

	require.NoError(t, env.hub.Broadcast(game.Data{Time: 9, RedGoals: 2}))
	assert.Equal(t, game.Data{Time: 9, RedGoals: 2}, readSnapshot(t, conn))
}

func TestSnapshotWireFormat(t *testing.T) {
	env := newTestServer(t)
	conn := env.dial(t, "/ws")
	waitForViewers(t, env.hub, 1)

	require.NoError(t, env.hub.Broadcast(game.Data{Time: 5, BlueGoals: 1, RedGoals: 1}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"time":5,"blue_goals":1,"red_goals":1}`, string(msg))
}

func TestEveryViewerGetsEverySnapshot(t *testing.T) {
	env := newTestServer(t)
	a := env.dial(t, "/ws")
	b := env.dial(t, "/ws")
	waitForViewers(t, env.hub, 2)

	require.NoError(t, env.hub.Broadcast(game.Data{Time: 3}))
	assert.Equal(t, game.Data{Time: 3}, readSnapshot(t, a))
	assert.Equal(t, game.Data{Time: 3}, readSnapshot(t, b))

	snap := env.tracker.Snapshot()
	assert.Equal(t, 2, snap.Viewers)
}

func TestViewerDisconnectIsRemoved(t *testing.T) {
	env := newTestServer(t)
	conn := env.dial(t, "/ws")
	waitForViewers(t, env.hub, 1)

	require.NoError(t, conn.Close())
	waitForViewers(t, env.hub, 0)

	// Broadcasting with nobody listening is fine.
	assert.NoError(t, env.hub.Broadcast(game.Data{Time: 1}))
}

func TestHubShutdownClosesViewers(t *testing.T) {
	logger := log.New(io.Discard)
	hub := NewHub(nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	srv := New(":0", status.NewTracker(time.Now(), status.Config{}), hub, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	env := &testEnv{ts: ts, hub: hub}
	conn := env.dial(t, "/ws")
	waitForViewers(t, hub, 1)

	cancel()
	<-done

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHubBusyWhenNotRunning(t *testing.T) {
	hub := NewHub(nil, log.New(io.Discard))
	for i := 0; i < hubBacklog; i++ {
		require.NoError(t, hub.Broadcast(game.Data{Time: uint64(i)}))
	}
	assert.ErrorIs(t, hub.Broadcast(game.Data{}), ErrHubBusy)
}

func TestGameClock(t *testing.T) {
	tests := []struct {
		ticks  uint64
		tickMs int64
		want   string
	}{
		{0, 1000, "0:00"},
		{5, 1000, "0:05"},
		{65, 1000, "1:05"},
		{600, 1000, "10:00"},
		{10, 500, "0:05"},
		{130, 500, "1:05"},
		{3, 2000, "0:06"},
		{65, 0, "1:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gameClock(tt.ticks, tt.tickMs), "%d ticks of %dms", tt.ticks, tt.tickMs)
	}
}

func TestHTMLClockFollowsTickLength(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{TickMs: 500})
	tr.Update("RUNNING", game.Data{Time: 130}, 0)

	var buf strings.Builder
	require.NoError(t, renderHTML(&buf, tr.Snapshot()))
	assert.Contains(t, buf.String(), `id="clock">1:05<`)
	assert.Regexp(t, `var tickMs =\s*500\s*;`, buf.String())
}
