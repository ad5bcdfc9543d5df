// Package env provides the configuration shared by the commands.
//
// Values are taken, from lowest to highest precedence, from the defaults,
// a TOML config file, environment variables (also read from a .env file)
// and command line flags.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/joho/godotenv"
)

// Config provides common options of the commands.
type Config struct {
	// Port is a serial device or a bridge URL (tcp://, ws://).
	Port        string   `toml:"port"`
	Baud        int      `toml:"baud"`
	ReadTimeout Duration `toml:"read_timeout"`

	// TypesFile is the type definition file.
	TypesFile         string   `toml:"types"`
	KeepAliveName     string   `toml:"keep_alive_name"`
	KeepAliveInterval Duration `toml:"keep_alive"`

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `toml:"mqtt_url"`
	ClientID      string `toml:"client_id"`

	ReconnectMin Duration `toml:"reconnect_min"`
	ReconnectMax Duration `toml:"reconnect_max"`

	// Device selects device handlers to bind, "ieee" or empty.
	Device string `toml:"device"`
}

// Duration is a time.Duration read from strings like "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type option struct {
	key  string
	env  string
	set  func(c *Config, val string) error
	copy func(dst, src *Config)
}

func durationOption(key, env string, field func(*Config) *Duration) option {
	return option{
		key: key,
		env: env,
		set: func(c *Config, val string) error {
			return field(c).UnmarshalText([]byte(val))
		},
		copy: func(dst, src *Config) { *field(dst) = *field(src) },
	}
}

func stringOption(key, env string, field func(*Config) *string) option {
	return option{
		key:  key,
		env:  env,
		set:  func(c *Config, val string) error { *field(c) = val; return nil },
		copy: func(dst, src *Config) { *field(dst) = *field(src) },
	}
}

var (
	options = []option{
		stringOption("port", "XMEGA_PORT", func(c *Config) *string { return &c.Port }),
		{
			key: "baud",
			env: "XMEGA_BAUD",
			set: func(c *Config, val string) (err error) {
				c.Baud, err = strconv.Atoi(val)
				return
			},
			copy: func(dst, src *Config) { dst.Baud = src.Baud },
		},
		durationOption("read_timeout", "XMEGA_READ_TIMEOUT", func(c *Config) *Duration { return &c.ReadTimeout }),
		stringOption("types", "XMEGA_TYPES", func(c *Config) *string { return &c.TypesFile }),
		stringOption("keep_alive_name", "XMEGA_KEEPALIVE_NAME", func(c *Config) *string { return &c.KeepAliveName }),
		durationOption("keep_alive", "XMEGA_KEEPALIVE", func(c *Config) *Duration { return &c.KeepAliveInterval }),
		stringOption("mqtt_url", "XMEGA_MQTT_URL", func(c *Config) *string { return &c.MQTTBrokerURL }),
		stringOption("client_id", "XMEGA_CLIENT_ID", func(c *Config) *string { return &c.ClientID }),
		durationOption("reconnect_min", "XMEGA_RECONNECT_MIN", func(c *Config) *Duration { return &c.ReconnectMin }),
		durationOption("reconnect_max", "XMEGA_RECONNECT_MAX", func(c *Config) *Duration { return &c.ReconnectMax }),
		stringOption("device", "XMEGA_DEVICE", func(c *Config) *string { return &c.Device }),
	}

	defaultConfig = Config{
		Port:              "/dev/ttyUSB0",
		Baud:              256000,
		TypesFile:         "config/types.toml",
		KeepAliveName:     "keep_alive",
		KeepAliveInterval: Duration{500 * time.Millisecond},
		MQTTBrokerURL:     "mqtt://localhost:1883/xmega/",
		ReconnectMin:      Duration{100 * time.Millisecond},
		ReconnectMax:      Duration{5 * time.Second},
		Device:            "ieee",
	}

	// keys set by environment variables
	envKeys = make(map[string]bool)

	configFile string
)

func init() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}
	if val := os.Getenv("XMEGA_CONFIG"); val != "" {
		configFile = val
	}
	if err := applyEnv(&defaultConfig, os.LookupEnv); err != nil {
		log.Printf("environment ignored: %v", err)
	}
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, opt := range options {
		val, ok := lookup(opt.env)
		if !ok || val == "" {
			continue
		}
		if err := opt.set(c, val); err != nil {
			return fmt.Errorf("%s: %w", opt.env, err)
		}
		envKeys[opt.key] = true
	}
	return nil
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Config file (TOML)")
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial device or bridge URL (tcp://, ws://)")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Baud rate")
	flag.DurationVar(&defaultConfig.ReadTimeout.Duration, "read_timeout", defaultConfig.ReadTimeout.Duration, "Fail the link when nothing is received for the duration, 0 to disable")
	flag.StringVar(&defaultConfig.TypesFile, "types", defaultConfig.TypesFile, "Type definition file")
	flag.StringVar(&defaultConfig.KeepAliveName, "keep_alive_name", defaultConfig.KeepAliveName, "Outgoing type of keep-alive frames")
	flag.DurationVar(&defaultConfig.KeepAliveInterval.Duration, "keep_alive", defaultConfig.KeepAliveInterval.Duration, "Keep-alive interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.ClientID, "client_id", defaultConfig.ClientID, "MQTT client ID")
	flag.DurationVar(&defaultConfig.ReconnectMin.Duration, "reconnect_min", defaultConfig.ReconnectMin.Duration, "Initial delay before reopening the link")
	flag.DurationVar(&defaultConfig.ReconnectMax.Duration, "reconnect_max", defaultConfig.ReconnectMax.Duration, "Max delay before reopening the link")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Device handlers to bind (ieee or empty)")
}

var flagKeys = map[string]string{
	"mqtt": "mqtt_url",
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config from defaults, the config file, environment
// and flags. It must be called after flag.Parse.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	if configFile == "" {
		return &conf, nil
	}
	overridden := make(map[string]bool)
	for key := range envKeys {
		overridden[key] = true
	}
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overridden[key] = true
		} else {
			overridden[f.Name] = true
		}
	})
	if err := conf.merge(configFile, overridden); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustNewConfig creates Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile overrides the config with values present in a TOML file.
func (c *Config) LoadFile(path string) error {
	return c.merge(path, nil)
}

func (c *Config) merge(path string, overridden map[string]bool) error {
	var fileConf Config
	md, err := toml.DecodeFile(path, &fileConf)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config invalid (%s): unknown key %s", path, undecoded[0])
	}
	for _, opt := range options {
		if md.IsDefined(opt.key) && !overridden[opt.key] {
			opt.copy(c, &fileConf)
		}
	}
	return nil
}

// MQTTClientID returns the client ID of a command. Unless ClientID is
// set, the ID is derived from the machine ID.
func (c *Config) MQTTClientID(role string) string {
	base := c.ClientID
	if base == "" {
		id, err := machineid.ProtectedID("xmega")
		if err != nil {
			id, _ = os.Hostname()
		} else if len(id) > 16 {
			id = id[:16]
		}
		base = "xmega:" + id
	}
	return base + "/" + role
}
