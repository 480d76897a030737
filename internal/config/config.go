// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"strconv"

	env "github.com/caarlos0/env/v11"
)

// Mode selects the logging pipeline: a colored console in debug, structured
// and exported output in release.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

// Config holds the complete application configuration
type Config struct {
	Service string       `json:"service_name" env:"APP_NAME" envDefault:"npypack"`
	Version string       `json:"version"      env:"VERSION"  envDefault:"v0.1.0"`
	Mode    Mode         `json:"mode"         env:"MODE"     envDefault:"debug"`
	Serde   SerdeConfig  `json:"serde"        envPrefix:"SERDE_"`
	NATS    NATSConfig   `json:"nats"         envPrefix:"NATS_"`
	Logger  LoggerConfig `json:"logger"       envPrefix:"LOG_"`
}

const (
	DefaultExtTag     = 0
	DefaultMaxExtSize = 256 << 20
)

// SerdeConfig controls how arrays are embedded in packed messages.
type SerdeConfig struct {
	ExtTag      int  `json:"ext_tag"       env:"EXT_TAG"`
	MaxExtSize  int  `json:"max_ext_size"  env:"MAX_EXT_SIZE"`
	SortMapKeys bool `json:"sort_map_keys" env:"SORT_MAP_KEYS"`
}

func LoadConfig() (*Config, error) {
	cfg := Config{
		Serde: SerdeConfig{
			ExtTag:     DefaultExtTag,
			MaxExtSize: DefaultMaxExtSize,
		},
		NATS: NATSConfig{
			Host:          DefaultNATSHost,
			Port:          DefaultNATSPort,
			Subject:       DefaultNATSSubject,
			MaxReconnects: DefaultMaxReconnects,
			ReconnectWait: DefaultReconnectWait,
			DrainTimeout:  DefaultDrainTimeout,
			PingInterval:  DefaultPingInterval,
			MaxPingsOut:   DefaultMaxPingsOut,
			ClientName:    "npypack",
		},
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	}

	return &cfg, nil
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error

	if c.Service == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if c.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if c.Mode != ModeDebug && c.Mode != ModeRelease {
		errs = append(errs, fmt.Errorf("invalid mode %q: want debug or release", c.Mode))
	}

	if c.Serde.ExtTag < 0 || c.Serde.ExtTag > 127 {
		errs = append(errs, fmt.Errorf("serde ext tag %d outside 0..127", c.Serde.ExtTag))
	}
	if c.Serde.MaxExtSize <= 0 {
		errs = append(errs, errors.New("serde max ext size must be positive"))
	}

	errs = append(errs, c.NATS.validate()...)
	errs = append(errs, c.Logger.validate()...)
	return errors.Join(errs...)
}

func (c *Config) ServiceName() string {
	return c.Service
}

func (c *Config) GetVersion() string {
	return c.Version
}

// IsDebug reports whether the application runs in debug mode.
func (c *Config) IsDebug() bool {
	return c.Mode == ModeDebug
}

// ExtTag returns the configured array extension tag.
func (c *Config) ExtTag() int8 {
	return int8(c.Serde.ExtTag)
}

func validPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}
