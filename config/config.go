// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads the settings of an httpflow client from a file
// and the environment, and builds the client they describe.
//
// Settings are read with viper from a YAML, JSON or TOML file. Every
// setting can be overridden by an environment variable named after its
// key with the HTTPFLOW prefix, dots replaced by underscores, for
// example HTTPFLOW_CLIENT_TIMEOUT=5s.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gogama/httpflow"
	"github.com/gogama/httpflow/timeout"
	"github.com/gogama/httpflow/transport"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "HTTPFLOW"

// Config holds every setting.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
}

// EngineConfig holds the settings of the transport engine.
type EngineConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	HTTP2         bool          `mapstructure:"http2"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	ThrottleRPS   float64       `mapstructure:"throttle_rps" validate:"gte=0"`
	ThrottleBurst int           `mapstructure:"throttle_burst" validate:"required_with=ThrottleRPS,gte=0"`
	Methods       []string      `mapstructure:"methods" validate:"dive,required"`
}

// ClientConfig holds the settings of the client.
type ClientConfig struct {
	// Timeout bounds every request. Zero means no bound.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// MethodTimeouts overrides Timeout per HTTP method.
	MethodTimeouts map[string]time.Duration `mapstructure:"method_timeouts" validate:"dive,gte=0"`
	// MaxConcurrent bounds the asynchronous transfers in flight. Zero
	// means no bound.
	MaxConcurrent int64 `mapstructure:"max_concurrent" validate:"gte=0"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Encoding    string `mapstructure:"encoding" validate:"oneof=json console"`
	Development bool   `mapstructure:"development"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			DialTimeout: 30 * time.Second,
			Methods:     append([]string(nil), transport.DefaultMethods...),
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

func defaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("engine.user_agent", d.Engine.UserAgent)
	v.SetDefault("engine.http2", d.Engine.HTTP2)
	v.SetDefault("engine.dial_timeout", d.Engine.DialTimeout)
	v.SetDefault("engine.throttle_rps", d.Engine.ThrottleRPS)
	v.SetDefault("engine.throttle_burst", d.Engine.ThrottleBurst)
	v.SetDefault("engine.methods", d.Engine.Methods)
	v.SetDefault("client.timeout", d.Client.Timeout)
	v.SetDefault("client.method_timeouts", map[string]time.Duration{})
	v.SetDefault("client.max_concurrent", d.Client.MaxConcurrent)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.development", d.Log.Development)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks every setting.
func (c Config) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(c)
}

// NewEngine builds the transport engine described by c.
func (c Config) NewEngine(logger *zap.Logger) (*transport.Engine, error) {
	var opts []transport.Option
	if c.Engine.UserAgent != "" {
		opts = append(opts, transport.WithUserAgent(c.Engine.UserAgent))
	}
	if c.Engine.HTTP2 {
		opts = append(opts, transport.WithHTTP2())
	}
	if c.Engine.DialTimeout > 0 {
		opts = append(opts, transport.WithDialTimeout(c.Engine.DialTimeout))
	}
	if c.Engine.ThrottleRPS > 0 {
		opts = append(opts, transport.WithThrottle(c.Engine.ThrottleRPS, c.Engine.ThrottleBurst))
	}
	if len(c.Engine.Methods) > 0 {
		methods := make([]string, len(c.Engine.Methods))
		for i, m := range c.Engine.Methods {
			methods[i] = strings.ToUpper(m)
		}
		opts = append(opts, transport.WithMethods(methods...))
	}
	if logger != nil {
		opts = append(opts, transport.WithLogger(logger))
	}
	return transport.NewEngine(opts...)
}

// NewLogger builds the zap logger described by c.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.Log.Encoding != "" {
		zc.Encoding = c.Log.Encoding
	}
	return zc.Build()
}

// TimeoutPolicy returns the timeout policy described by c.
func (c Config) TimeoutPolicy() timeout.Policy {
	usual := c.Client.Timeout
	if usual <= 0 {
		usual = timeout.MaxTimeout
	}
	if len(c.Client.MethodTimeouts) == 0 {
		return timeout.Fixed(usual)
	}
	return timeout.ByMethod(usual, c.Client.MethodTimeouts)
}

// NewClient validates c and builds the client it describes, with its
// own engine and logger.
func (c Config) NewClient() (*httpflow.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger, err := c.NewLogger()
	if err != nil {
		return nil, err
	}
	e, err := c.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	return &httpflow.Client{
		Engine:        e,
		TimeoutPolicy: c.TimeoutPolicy(),
		Logger:        logger,
		MaxConcurrent: c.Client.MaxConcurrent,
	}, nil
}

// A Loader reads a Config and keeps it current while the file changes.
type Loader struct {
	v *viper.Viper

	mu       sync.RWMutex
	cur      Config
	watchers []func(old, new Config)
	watching bool
}

// Load reads the file at path, overlaid with the environment, on top
// of DefaultConfig. An empty path reads the environment only. The
// result must validate.
func Load(path string) (*Loader, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	l := &Loader{v: v}
	c, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.cur = c
	return l, nil
}

func (l *Loader) decode() (Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Config returns the current settings.
func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// OnChange registers fn to be called with the previous and the new
// settings each time the file changes to valid, different settings.
func (l *Loader) OnChange(fn func(old, new Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}

// Watch starts watching the file for changes. Invalid contents are
// ignored and the current settings kept. Watching a Loader without a
// file fails.
func (l *Loader) Watch() error {
	if l.v.ConfigFileUsed() == "" {
		return errors.New("config: no file to watch")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watching {
		return nil
	}
	l.watching = true

	var (
		debounce   *time.Timer
		debounceMu sync.Mutex
	)
	l.v.OnConfigChange(func(fsnotify.Event) {
		debounceMu.Lock()
		defer debounceMu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(100*time.Millisecond, l.reload)
	})
	l.v.WatchConfig()
	return nil
}

func (l *Loader) reload() {
	l.mu.Lock()
	old := l.cur
	if err := l.v.ReadInConfig(); err != nil {
		l.mu.Unlock()
		return
	}
	c, err := l.decode()
	if err != nil || reflect.DeepEqual(old, c) {
		l.mu.Unlock()
		return
	}
	l.cur = c
	watchers := append(([]func(old, new Config))(nil), l.watchers...)
	l.mu.Unlock()

	for _, fn := range watchers {
		fn(old, c)
	}
}
