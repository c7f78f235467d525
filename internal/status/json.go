package status

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/sweeney/foosball-sensor/internal/game"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Game          game.Data    `json:"game"`
	Ticks         uint64       `json:"ticks"`
	LastWinner    *WinnerJSON  `json:"last_winner,omitempty"`
	Wins          WinsJSON     `json:"wins"`
	Sensors       []SensorJSON `json:"sensors"`
	PendingEvents int          `json:"pending_events"`
	Viewers       int          `json:"viewers"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Config        ConfigJSON   `json:"config"`
}

// WinnerJSON describes the most recent win.
type WinnerJSON struct {
	Side  string    `json:"side"`
	Final game.Data `json:"final"`
}

// WinsJSON counts games won per side since startup.
type WinsJSON struct {
	Blue int `json:"blue"`
	Red  int `json:"red"`
}

// SensorJSON reports debounce counters for one sensor.
type SensorJSON struct {
	Role       string `json:"role"`
	Accepted   uint64 `json:"accepted"`
	Suppressed uint64 `json:"suppressed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs         int64  `json:"tick_ms"`
	DebounceMs     int64  `json:"debounce_ms"`
	DebouncePolicy string `json:"debounce_policy"`
	MaxScore       int    `json:"max_score"`
	Broker         string `json:"broker"`
	ListenAddr     string `json:"listen_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		Game:          snap.Game,
		Ticks:         snap.Ticks,
		Wins:          WinsJSON{Blue: snap.BlueWins, Red: snap.RedWins},
		Sensors:       []SensorJSON{},
		PendingEvents: snap.PendingEvents,
		Viewers:       snap.Viewers,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:         snap.Config.TickMs,
			DebounceMs:     snap.Config.DebounceMs,
			DebouncePolicy: snap.Config.DebouncePolicy,
			MaxScore:       snap.Config.MaxScore,
			Broker:         snap.Config.Broker,
			ListenAddr:     snap.Config.ListenAddr,
		},
	}

	if snap.LastWin != nil {
		inner.LastWinner = &WinnerJSON{
			Side:  string(snap.LastWin.Side),
			Final: snap.LastWin.Final,
		}
	}

	for role, c := range snap.Sensors {
		inner.Sensors = append(inner.Sensors, SensorJSON{
			Role:       string(role),
			Accepted:   c.Accepted,
			Suppressed: c.Suppressed,
		})
	}
	sort.Slice(inner.Sensors, func(i, j int) bool {
		return inner.Sensors[i].Role < inner.Sensors[j].Role
	})

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
