package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/userextra"
	"github.com/jamesrr39/ownmap-paparazzi/offscreen"
	"github.com/jamesrr39/ownmap-paparazzi/paparazzi"
	"github.com/jamesrr39/ownmap-paparazzi/viewstate"
	"github.com/jamesrr39/ownmap-paparazzi/webservices"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort         = 9000
	DefaultWorkers      = 1
	DefaultFetchWorkers = 4
	DefaultRootDir      = "~/.local/share/github.com/jamesrr39/ownmap-paparazzi/"
)

type MQTTTopicsConfig struct {
	Commands string `yaml:"commands"`
	Replies  string `yaml:"replies"`
	Images   string `yaml:"images"`
}

// MQTTConfig is only used when Broker is set
type MQTTConfig struct {
	Broker   string           `yaml:"broker"`
	ClientID string           `yaml:"clientId"`
	Username string           `yaml:"username"`
	Password string           `yaml:"password"`
	QoS      byte             `yaml:"qos"`
	Topics   MQTTTopicsConfig `yaml:"topics"`
}

func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

type Config struct {
	Addr         string `yaml:"addr"`
	Workers      int    `yaml:"workers"`
	FetchWorkers uint   `yaml:"fetchWorkers"`

	MaxWait        time.Duration `yaml:"maxWait"`
	FrameDeltaHint float64       `yaml:"frameDeltaHint"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	SuperSample    float64       `yaml:"superSample"`
	// MaxSurfaceSize is the biggest engine surface, in pixels along one side. 0 means offscreen.DefaultMaxSurfaceSize.
	MaxSurfaceSize int            `yaml:"maxSurfaceSize"`
	DefaultSize    viewstate.Size `yaml:"defaultSize"`

	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
	Profile      bool  `yaml:"profile"`
	LogRequests  bool  `yaml:"logRequests"`
	Trace        bool  `yaml:"trace"`

	Paths PathsConfig `yaml:"paths"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

func Defaults() *Config {
	return &Config{
		Addr:           fmt.Sprintf(":%d", DefaultPort),
		Workers:        DefaultWorkers,
		FetchWorkers:   DefaultFetchWorkers,
		MaxWait:        paparazzi.DefaultMaxWait,
		FrameDeltaHint: paparazzi.DefaultFrameDeltaHint,
		SuperSample:    viewstate.DefaultSuperSampleFactor,
		MaxSurfaceSize: offscreen.DefaultMaxSurfaceSize,
		DefaultSize: viewstate.Size{
			Width:   viewstate.DefaultWidth,
			Height:  viewstate.DefaultHeight,
			Density: viewstate.DefaultDensity,
		},
		MaxBodyBytes: webservices.DefaultMaxBodyBytes,
		LogRequests:  true,
		Paths: PathsConfig{
			CacheDir: filepath.Join(DefaultRootDir, "scene_cache"),
			TraceDir: filepath.Join(DefaultRootDir, "trace"),
		},
		MQTT: MQTTConfig{
			QoS: 1,
			Topics: MQTTTopicsConfig{
				Commands: "paparazzi/commands",
				Replies:  "paparazzi/replies",
				Images:   "paparazzi/images",
			},
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path gives the defaults.
func Load(fs gofs.Fs, path string) (*Config, errorsx.Error) {
	conf := Defaults()
	if path == "" {
		return conf, nil
	}

	expandedPath, err := userextra.ExpandUser(path)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", path)
	}

	b, err := fs.ReadFile(expandedPath)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", expandedPath)
	}

	err = yaml.Unmarshal(b, conf)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", expandedPath)
	}

	return conf, nil
}

func (c *Config) Validate() errorsx.Error {
	if c.Workers < 1 {
		return errorsx.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.FetchWorkers < 1 {
		return errorsx.Errorf("fetchWorkers must be at least 1, got %d", c.FetchWorkers)
	}
	if c.MaxWait <= 0 {
		return errorsx.Errorf("maxWait must be positive, got %s", c.MaxWait)
	}
	if c.PollInterval < 0 {
		return errorsx.Errorf("pollInterval cannot be negative, got %s", c.PollInterval)
	}
	if c.SuperSample < 1 {
		return errorsx.Errorf("superSample must be at least 1, got %v", c.SuperSample)
	}
	if c.MaxSurfaceSize < 0 {
		return errorsx.Errorf("maxSurfaceSize cannot be negative, got %d", c.MaxSurfaceSize)
	}
	if c.DefaultSize.Width <= 0 || c.DefaultSize.Height <= 0 {
		return errorsx.Errorf("defaultSize must be positive, got %dx%d", c.DefaultSize.Width, c.DefaultSize.Height)
	}
	if c.MaxBodyBytes <= 0 {
		return errorsx.Errorf("maxBodyBytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.MQTT.Enabled() {
		if c.MQTT.QoS > 2 {
			return errorsx.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
		if c.MQTT.Topics.Commands == "" {
			return errorsx.Errorf("mqtt broker %q given without a commands topic", c.MQTT.Broker)
		}
	}

	return nil
}

// PaparazziOptions are the options each render instance is created with
func (c *Config) PaparazziOptions() paparazzi.Options {
	size := c.DefaultSize
	size.Density = viewstate.ClampDensity(size.Density)

	return paparazzi.Options{
		MaxWait:        c.MaxWait,
		FrameDeltaHint: c.FrameDeltaHint,
		PollInterval:   c.PollInterval,
		SuperSample:    c.SuperSample,
		MaxSurfaceSize: c.MaxSurfaceSize,
		InitialSize:    size,
	}
}
