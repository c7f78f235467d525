package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
	"github.com/sweeney/foosball-sensor/internal/game"
)

// ErrNotConnected is returned for snapshots published while the broker is
// unreachable. Snapshots are not buffered; the next tick supersedes them.
var ErrNotConnected = errors.New("mqtt: not connected")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Logger      *log.Logger
}

// RealPublisher publishes to an actual MQTT broker.
// Winner and system messages sent while disconnected are held in a ring
// buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *log.Logger

	mu      sync.Mutex
	pending *ringBuffer
}

// NewRealPublisher creates a publisher and starts connecting to the broker.
// An unreachable broker is not an error: the client keeps retrying in the
// background and the game runs without MQTT until it connects.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &RealPublisher{
		topics:  TopicsFor(opts.TopicPrefix),
		logger:  logger,
		pending: newRingBuffer(defaultBufferSize),
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetWill(p.topics.System, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.logger.Info("connected", "broker", opts.Broker)
			go p.replay()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("connection lost", "error", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warn("broker not reachable yet, retrying in background", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Broadcast publishes a snapshot to the state topic and waits up to
// publishTimeout for it to leave. Run it behind broadcast.Latest so the tick
// loop never waits on the broker.
func (p *RealPublisher) Broadcast(snap game.Data) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := broadcast.FormatSnapshot(snap)
	if err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}

	token := p.client.Publish(p.topics.State, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish state timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// Announce publishes a retained win announcement.
// It does not wait for the broker acknowledgement so the tick loop is never
// held up by a slow connection.
func (p *RealPublisher) Announce(win game.Win) error {
	payload, err := broadcast.FormatAnnouncement(win)
	if err != nil {
		return fmt.Errorf("format announcement: %w", err)
	}
	p.publishOrBuffer(bufferedMsg{topic: p.topics.Winner, payload: payload, qos: 1, retained: true}, false)
	return nil
}

// PublishSystem publishes a retained lifecycle event and waits for it to be
// delivered.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publishOrBuffer(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: true}, true)
}

func (p *RealPublisher) publishOrBuffer(msg bufferedMsg, wait bool) error {
	if !p.client.IsConnectionOpen() {
		p.buffer(msg)
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !wait {
		go func() {
			if token.WaitTimeout(publishTimeout) && token.Error() == nil {
				return
			}
			p.logger.Warn("publish not confirmed", "topic", msg.topic, "error", token.Error())
		}()
		return nil
	}

	if !token.WaitTimeout(publishTimeout) {
		p.buffer(msg)
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.buffer(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) buffer(msg bufferedMsg) {
	p.mu.Lock()
	dropped := p.pending.push(msg)
	n := p.pending.len()
	p.mu.Unlock()

	if dropped {
		p.logger.Warn("offline buffer full, dropped oldest message", "capacity", defaultBufferSize)
	}
	p.logger.Debug("buffered while offline", "topic", msg.topic, "pending", n)
}

// replay sends everything buffered during an outage, oldest first.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.pending.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	p.logger.Info("replaying buffered messages", "count", len(msgs))
	for _, msg := range msgs {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.logger.Warn("replay failed", "topic", msg.topic, "error", token.Error())
		}
	}
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
