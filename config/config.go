package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/LoveWonYoung/vcimon/buffer"
	"github.com/LoveWonYoung/vcimon/driver"
	"github.com/LoveWonYoung/vcimon/receiver"
)

// EnvPrefix is prepended to every environment override, e.g. VCIMON_DEVICE_TYPE.
const EnvPrefix = "VCIMON"

type Config struct {
	Driver   DriverConfig    `mapstructure:"driver" yaml:"driver"`
	Device   DeviceConfig    `mapstructure:"device" yaml:"device"`
	Receiver receiver.Config `mapstructure:"receiver" yaml:"receiver"`
	Console  ConsoleConfig   `mapstructure:"console" yaml:"console"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Capture  CaptureConfig   `mapstructure:"capture" yaml:"capture"`
}

type DriverConfig struct {
	Library string `mapstructure:"library" yaml:"library"`
	Mock    bool   `mapstructure:"mock" yaml:"mock"`
}

type DeviceConfig struct {
	Type    uint32 `mapstructure:"type" yaml:"type"`
	Index   uint32 `mapstructure:"index" yaml:"index"`
	Channel uint32 `mapstructure:"channel" yaml:"channel"`
	CAN1    uint32 `mapstructure:"can1" yaml:"can1"`
	CAN2    uint32 `mapstructure:"can2" yaml:"can2"`
	Baud    int    `mapstructure:"baud" yaml:"baud"`
}

// Handle returns the configured adapter channel.
func (d DeviceConfig) Handle() driver.Handle {
	return driver.Handle{DeviceType: d.Type, DeviceIndex: d.Index, Channel: d.Channel}
}

type ConsoleConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	Tick            time.Duration `mapstructure:"tick" yaml:"tick"`
	BufferSize      int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Dir         string        `mapstructure:"dir" yaml:"dir"`
	Prefix      string        `mapstructure:"prefix" yaml:"prefix"`
	Level       string        `mapstructure:"level" yaml:"level"`
	RotateEvery time.Duration `mapstructure:"rotate_every" yaml:"rotate_every"`
	File        bool          `mapstructure:"file" yaml:"file"`
}

type CaptureConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver.library", driver.DefaultLibraryPath)
	v.SetDefault("driver.mock", false)

	v.SetDefault("device.type", driver.DeviceUSBCAN2)
	v.SetDefault("device.index", 0)
	v.SetDefault("device.channel", 0)
	v.SetDefault("device.can1", 0)
	v.SetDefault("device.can2", 1)
	v.SetDefault("device.baud", driver.DefaultBaudIndex)

	v.SetDefault("receiver.poll_timeout", receiver.DefaultPollTimeout)
	v.SetDefault("receiver.interval", receiver.DefaultInterval)
	v.SetDefault("receiver.batch_size", receiver.DefaultBatchSize)

	v.SetDefault("console.listen", "127.0.0.1:8080")
	v.SetDefault("console.tick", "100ms")
	v.SetDefault("console.buffer_size", buffer.DefaultCapacity)
	v.SetDefault("console.shutdown_timeout", "5s")

	v.SetDefault("log.dir", ".")
	v.SetDefault("log.prefix", "vcimon_")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.rotate_every", "5m")
	v.SetDefault("log.file", true)

	v.SetDefault("capture.enabled", false)
	v.SetDefault("capture.prefix", "can_capture_")
}

// Default returns the built-in configuration without reading any file or env.
func Default() *Config {
	cfg, err := load(viper.New(), "")
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// Load reads path (YAML) when given, applies VCIMON_* environment overrides
// and validates the result. A missing path is not an error when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return load(v, path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if _, err := driver.BaudRateAt(c.Device.Baud); err != nil {
		errs = append(errs, fmt.Errorf("device.baud: %w", err))
	}
	if err := c.Receiver.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Console.Tick <= 0 {
		errs = append(errs, fmt.Errorf("console.tick must be positive, got %v", c.Console.Tick))
	}
	if c.Console.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("console.buffer_size must be positive, got %d", c.Console.BufferSize))
	}
	if !c.Driver.Mock && c.Driver.Library == "" {
		errs = append(errs, errors.New("driver.library is required unless driver.mock is set"))
	}
	return errors.Join(errs...)
}

// WriteFile writes c as YAML to path, refusing to overwrite an existing file.
func (c *Config) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}
