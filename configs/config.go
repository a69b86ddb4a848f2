// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package configs contains the application's configuration.
//
// The configuration is read from an optional TOML file, then from
// environment variables prefixed with "AUTHZBRIDGE_". For example,
// "authz.installed_apps" can be set with AUTHZBRIDGE_AUTHZ_INSTALLED_APPS
// as a comma separated list.
package configs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/komkom/toml"

	"codeberg.org/readeck/authzbridge/pkg/http/request"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "AUTHZBRIDGE_"

var version = "dev"

// Version returns the application's version.
func Version() string {
	return version
}

type config struct {
	Main   configMain   `json:"main" envPrefix:"MAIN_"`
	Server configServer `json:"server" envPrefix:"SERVER_"`
	Authz  configAuthz  `json:"authz" envPrefix:"AUTHZ_"`
	Users  configUsers  `json:"users" envPrefix:"USERS_"`
}

type configMain struct {
	LogLevel  slog.Level `json:"log_level" env:"LOG_LEVEL"`
	LogFormat string     `json:"log_format" env:"LOG_FORMAT"`
	DevMode   bool       `json:"dev_mode" env:"DEV_MODE"`
}

type configServer struct {
	Host           string   `json:"host" env:"HOST"`
	Port           int      `json:"port" env:"PORT"`
	Prefix         string   `json:"prefix" env:"PREFIX"`
	TrustedProxies []string `json:"trusted_proxies" env:"TRUSTED_PROXIES"`
}

type configAuthz struct {
	InstalledApps   []string `json:"installed_apps" env:"INSTALLED_APPS"`
	DeclarationsDir string   `json:"declarations_dir" env:"DECLARATIONS_DIR"`
	DenyByDefault   bool     `json:"deny_by_default" env:"DENY_BY_DEFAULT"`
	DenyMessage     string   `json:"deny_message" env:"DENY_MESSAGE"`
}

type configUsers struct {
	File       string   `json:"file" env:"FILE"`
	Database   string   `json:"database" env:"DATABASE"`
	PolicyFile string   `json:"policy_file" env:"POLICY_FILE"`
	AuthHeader string   `json:"auth_header" env:"AUTH_HEADER"`
	CacheTTL   Duration `json:"cache_ttl" env:"CACHE_TTL"`
	CacheRedis string   `json:"cache_redis" env:"CACHE_REDIS"`
}

// Duration is a [time.Duration] read from a string such as "90s".
type Duration time.Duration

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds the configuration data.
var Config = newConfig()

func newConfig() config {
	return config{
		Main: configMain{
			LogLevel:  slog.LevelInfo,
			LogFormat: "text",
		},
		Server: configServer{
			Host:           "127.0.0.1",
			Port:           8000,
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		Authz: configAuthz{
			DenyMessage: "Access denied",
		},
		Users: configUsers{
			CacheTTL: Duration(2 * time.Minute),
		},
	}
}

// Load resets [Config] to its defaults, then loads the given TOML file,
// when not empty, and the environment.
func Load(filename string) error {
	c := newConfig()

	if filename != "" {
		fd, err := os.Open(filename)
		if err != nil {
			return err
		}
		defer fd.Close() // nolint:errcheck

		if err = c.decode(fd); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
	}

	if err := c.loadEnv(nil); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	Config = c
	return nil
}

// decode reads a TOML document.
func (c *config) decode(r io.Reader) error {
	dec := json.NewDecoder(toml.New(r))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// loadEnv reads the environment variables. A nil environ means
// the process environment.
func (c *config) loadEnv(environ map[string]string) error {
	return env.ParseWithOptions(c, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	})
}

func (c *config) validate() error {
	switch c.Main.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("main.log_format: invalid value %q", c.Main.LogFormat)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: invalid value %d", c.Server.Port)
	}
	if c.Users.CacheTTL < 0 {
		return errors.New("users.cache_ttl: must not be negative")
	}
	if _, err := request.ParseNetworks(c.Server.TrustedProxies...); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	return nil
}

// Addr returns the server's listening address.
func (c configServer) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TrustedProxies returns the list of trusted proxy networks.
func TrustedProxies() []*net.IPNet {
	res, _ := request.ParseNetworks(Config.Server.TrustedProxies...)
	return res
}
