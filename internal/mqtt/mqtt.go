// Package mqtt publishes scoreboard snapshots, winners and daemon lifecycle
// events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
)

// Topics are the per-table MQTT topics derived from a prefix.
type Topics struct {
	// State receives one snapshot per tick (QoS 0, not retained).
	State string
	// Winner receives win announcements (QoS 1, retained).
	Winner string
	// System receives STARTUP/SHUTDOWN and the OFFLINE will (QoS 1, retained).
	System string
}

// TopicsFor builds the topic set under prefix, e.g. "foosball/table/state".
func TopicsFor(prefix string) Topics {
	return Topics{
		State:  prefix + "/state",
		Winner: prefix + "/winner",
		System: prefix + "/system",
	}
}

// Publisher sends game output to MQTT.
type Publisher interface {
	broadcast.Sink
	broadcast.Announcer

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Lifecycle event names.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventOffline  = "OFFLINE"
)

// SystemEvent is a daemon lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // signal name on shutdown
	// RawPayload, if set, is published as-is instead of the formatted payload.
	RawPayload []byte
}

// SystemPayload is the MQTT payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is the last-will message the broker publishes on our behalf
// when the connection drops without a clean disconnect.
func WillPayload() []byte {
	// Timestamp is left out; the broker sends this long after it was set.
	payload, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: EventOffline}})
	return payload
}
