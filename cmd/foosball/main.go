// Command foosball reads the table sensors, keeps score and streams the
// scoreboard to websocket viewers and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/foosball-sensor/internal/broadcast"
	"github.com/sweeney/foosball-sensor/internal/config"
	"github.com/sweeney/foosball-sensor/internal/events"
	"github.com/sweeney/foosball-sensor/internal/game"
	"github.com/sweeney/foosball-sensor/internal/gpio"
	"github.com/sweeney/foosball-sensor/internal/mqtt"
	"github.com/sweeney/foosball-sensor/internal/status"
	"github.com/sweeney/foosball-sensor/internal/web"
)

var CLI struct {
	Config    string `short:"c" long:"config" default:"config.json" help:"Path to the table configuration (JSON or HCL)"`
	LogLevel  string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	Check     bool   `long:"check" help:"Validate the configuration, print it and exit"`
	PrintPins bool   `long:"print-pins" help:"Print the current level of every sensor pin and exit"`
}

const shutdownTimeout = 5 * time.Second

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("foosball"),
		kong.Description("Foosball table scoreboard"),
		kong.UsageOnError(),
	)

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})

	ctx.FatalIfErrorf(run(logger))
}

func run(logger *log.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	levelName := cfg.LogLevel
	if CLI.LogLevel != "" {
		levelName = CLI.LogLevel
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	if CLI.Check {
		printConfig(os.Stdout, cfg)
		return nil
	}

	src, err := gpio.NewRealSource(cfg.GPIOChip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("release gpio lines", "error", err)
		}
	}()

	if CLI.PrintPins {
		return printPins(os.Stdout, src, cfg.Pins())
	}

	clock := quartz.NewReal()
	queue := events.NewQueue()
	sensors, err := events.Attach(src, cfg.Pins(), queue, clock, cfg.Debounce(), cfg.Policy())
	if err != nil {
		return fmt.Errorf("attach sensors: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:         cfg.Tick().Milliseconds(),
		DebounceMs:     cfg.Debounce().Milliseconds(),
		DebouncePolicy: cfg.Policy().String(),
		MaxScore:       cfg.MaxScore,
		Broker:         cfg.MQTTBroker,
		ListenAddr:     cfg.ListenAddr(),
	})
	tracker.SetSensors(events.CountsByRole(sensors))

	hub := web.NewHub(tracker, logger)
	sinks := broadcast.Multi{hub}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	var mqttState *broadcast.Latest
	if cfg.MQTTBroker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopic,
			Logger:      logger.WithPrefix("mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()

		publisher, mqttStatus = p, p
		// The state topic waits on the broker; keep that off the tick loop.
		mqttState = broadcast.NewLatest(p, logger.WithPrefix("mqtt"))
		sinks = append(sinks, mqttState)
		tracker.SetMQTTConnected(p.IsConnected())
		publishSystem(logger, publisher, tracker, mqtt.EventStartup, "")
	}

	srv := web.New(cfg.ListenAddr(), tracker, hub, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := clock.NewTicker(cfg.Tick(), "tick")
	defer ticker.Stop()

	loop := &tickLoop{
		queue:      queue,
		machine:    game.NewMachine(uint32(cfg.MaxScore)),
		sink:       sinks,
		announcer:  sinks,
		tracker:    tracker,
		sensors:    sensors,
		mqttStatus: mqttStatus,
		logger:     logger.WithPrefix("game"),
	}

	logger.Info("started",
		"pins", len(sensors),
		"max_score", cfg.MaxScore,
		"tick", cfg.Tick(),
		"debounce", cfg.Debounce(),
		"policy", cfg.Policy(),
		"listen", cfg.ListenAddr(),
		"mqtt", cfg.MQTTBroker,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	reason := make(chan string, 1)
	g.Go(func() error {
		select {
		case s := <-sigCh:
			logger.Info("shutting down", "signal", s)
			reason <- signalName(s)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	if mqttState != nil {
		g.Go(func() error {
			return mqttState.Run(gctx)
		})
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return loop.run(gctx, ticker.C)
	})

	err = g.Wait()

	if publisher != nil {
		r := "UNKNOWN"
		select {
		case r = <-reason:
		default:
		}
		publishSystem(logger, publisher, tracker, mqtt.EventShutdown, r)
	}
	return err
}

// tickLoop is the single consumer of the event queue and the only owner of
// the game state.
type tickLoop struct {
	queue      *events.Queue
	machine    *game.Machine
	sink       broadcast.Sink
	announcer  broadcast.Announcer // may be nil
	tracker    *status.Tracker     // may be nil
	sensors    []*events.Sensor
	mqttStatus mqtt.ConnectionStatus // may be nil
	logger     *log.Logger
}

// run applies one step per tick until ctx is cancelled.
func (l *tickLoop) run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			l.step()
		}
	}
}

// step consumes at most one queued event. Anything else stays queued for
// later ticks.
func (l *tickLoop) step() {
	e, ok := l.queue.TryPop()
	if !ok {
		e = game.EventNone
	}

	if win := l.machine.Next(e); win != nil {
		l.logger.Info(win.String(), "blue_goals", win.Final.BlueGoals, "red_goals", win.Final.RedGoals, "time", win.Final.Time)
		if l.announcer != nil {
			if err := l.announcer.Announce(*win); err != nil {
				l.logger.Error("announce failed", "error", err)
			}
		}
		if l.tracker != nil {
			l.tracker.RecordWin(*win)
		}
	}

	snap := l.machine.Data()
	state := l.machine.State().Name()
	l.logger.Info("tick",
		"event", e,
		"state", state,
		"time", snap.Time,
		"blue_goals", snap.BlueGoals,
		"red_goals", snap.RedGoals,
	)

	if l.tracker != nil {
		l.tracker.Update(state, snap, l.queue.Len())
		l.tracker.SetSensors(events.CountsByRole(l.sensors))
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
	}

	// Delivery failures never touch game state; the next tick resends.
	if err := l.sink.Broadcast(snap); err != nil {
		l.logger.Error("broadcast failed", "error", err)
	}
}

// publishSystem sends a lifecycle event carrying the full status snapshot.
func publishSystem(logger *log.Logger, publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logger.Warn("publish system event", "event", event, "error", err)
		return
	}
	logger.Info("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "config ok")
	for _, pin := range cfg.Pins() {
		fmt.Fprintf(w, "  %-12s pin %d\n", pin.Role, pin.Offset)
	}
	fmt.Fprintf(w, "  %-12s %s\n", "chip", cfg.GPIOChip)
	fmt.Fprintf(w, "  %-12s %d\n", "max_score", cfg.MaxScore)
	fmt.Fprintf(w, "  %-12s %s\n", "listen", cfg.ListenAddr())
	fmt.Fprintf(w, "  %-12s %v\n", "tick", cfg.Tick())
	fmt.Fprintf(w, "  %-12s %v (%s)\n", "debounce", cfg.Debounce(), cfg.Policy())
	broker := cfg.MQTTBroker
	if broker == "" {
		broker = "disabled"
	}
	fmt.Fprintf(w, "  %-12s %s\n", "mqtt", broker)
}

func printPins(w io.Writer, src gpio.Source, pins []gpio.Pin) error {
	levels, err := src.Levels(pins)
	if err != nil {
		return fmt.Errorf("read pins: %w", err)
	}
	for _, pin := range pins {
		state := "HIGH"
		if levels[pin.Role] == 0 {
			state = "LOW (triggered)"
		}
		fmt.Fprintf(w, "%-12s pin %-2d %s\n", pin.Role, pin.Offset, state)
	}
	return nil
}
