// Package config loads the table configuration from an HCL or JSON file.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/sweeney/foosball-sensor/internal/events"
	"github.com/sweeney/foosball-sensor/internal/gpio"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Defaults for optional attributes.
const (
	DefaultIPAddr       = "0.0.0.0"
	DefaultTickMs       = 1000
	DefaultLogLevel     = "info"
	DefaultMQTTTopic    = "foosball/table"
	DefaultMQTTClientID = "foosball-sensor"
)

// Config is the table configuration. Attribute names match the legacy
// config.json so existing files load unchanged.
type Config struct {
	BlueGoalPin  int  `hcl:"blue_goal_pin"`
	RedGoalPin   int  `hcl:"red_goal_pin"`
	BallDrop1Pin int  `hcl:"ball_drop_1_pin"`
	BallDrop2Pin int  `hcl:"ball_drop_2_pin"`
	ResetPin     *int `hcl:"reset_pin,optional"`

	IPAddr   string `hcl:"ip_addr,optional"`
	Port     int    `hcl:"port"`
	MaxScore int    `hcl:"max_score"`

	GPIOChip       string `hcl:"gpio_chip,optional"`
	DebounceMs     int    `hcl:"debounce_ms,optional"`
	DebouncePolicy string `hcl:"debounce_policy,optional"`
	TickMs         int    `hcl:"tick_ms,optional"`
	LogLevel       string `hcl:"log_level,optional"`

	MQTTBroker   string `hcl:"mqtt_broker,optional"`
	MQTTTopic    string `hcl:"mqtt_topic,optional"`
	MQTTClientID string `hcl:"mqtt_client_id,optional"`
}

// Load reads and validates the config file at path.
// Files ending in .json use HCL's JSON syntax; anything else is native HCL.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes and validates config source. The filename selects the
// syntax and is used in diagnostics.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()

	var file *hcl.File
	var diags hcl.Diagnostics
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		file, diags = parser.ParseJSON(src, filename)
	} else {
		file, diags = parser.ParseHCL(src, filename)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %s", filename, diags.Error())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.IPAddr == "" {
		c.IPAddr = DefaultIPAddr
	}
	if c.GPIOChip == "" {
		c.GPIOChip = gpio.DefaultChip
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = int(events.DefaultWindow.Milliseconds())
	}
	if c.TickMs == 0 {
		c.TickMs = DefaultTickMs
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MQTTTopic == "" {
		c.MQTTTopic = DefaultMQTTTopic
	}
	if c.MQTTClientID == "" {
		c.MQTTClientID = DefaultMQTTClientID
	}
}

// Validate reports every problem found, each wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	seen := make(map[int]gpio.Role)
	for _, pin := range c.Pins() {
		if pin.Offset < 0 || pin.Offset > 63 {
			invalid("%s_pin %d out of range 0-63", pin.Role, pin.Offset)
			continue
		}
		if other, ok := seen[pin.Offset]; ok {
			invalid("%s_pin %d already used by %s_pin", pin.Role, pin.Offset, other)
			continue
		}
		seen[pin.Offset] = pin.Role
	}

	if c.MaxScore < 1 {
		invalid("max_score must be at least 1, got %d", c.MaxScore)
	}
	if int64(c.MaxScore) > math.MaxUint32 {
		invalid("max_score %d exceeds %d", c.MaxScore, uint32(math.MaxUint32))
	}
	if c.Port < 1 || c.Port > 65535 {
		invalid("port %d out of range 1-65535", c.Port)
	}
	if strings.ContainsAny(c.IPAddr, ":/ \t") && net.ParseIP(c.IPAddr) == nil {
		invalid("ip_addr %q is not a host or IP address", c.IPAddr)
	}
	if c.DebounceMs < 0 {
		invalid("debounce_ms must not be negative, got %d", c.DebounceMs)
	}
	if c.TickMs < 0 {
		invalid("tick_ms must not be negative, got %d", c.TickMs)
	}
	if _, ok := events.ParsePolicy(c.DebouncePolicy); !ok {
		invalid("debounce_policy %q must be last_edge or last_accepted", c.DebouncePolicy)
	}

	return errors.Join(errs...)
}

// Pins returns the sensor pin assignments. The reset pin is included only
// when configured.
func (c *Config) Pins() []gpio.Pin {
	pins := []gpio.Pin{
		{Role: gpio.RoleBlueGoal, Offset: c.BlueGoalPin},
		{Role: gpio.RoleRedGoal, Offset: c.RedGoalPin},
		{Role: gpio.RoleBallDrop1, Offset: c.BallDrop1Pin},
		{Role: gpio.RoleBallDrop2, Offset: c.BallDrop2Pin},
	}
	if c.ResetPin != nil {
		pins = append(pins, gpio.Pin{Role: gpio.RoleReset, Offset: *c.ResetPin})
	}
	return pins
}

// ListenAddr returns the host:port for the viewer server.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.IPAddr, strconv.Itoa(c.Port))
}

// Tick returns the tick loop interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Debounce returns the per-channel debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Policy returns the debounce policy.
func (c *Config) Policy() events.Policy {
	p, _ := events.ParsePolicy(c.DebouncePolicy)
	return p
}
