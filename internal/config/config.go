// Package config loads session parameters (host, port, credentials,
// heartbeat tuning, connect timeout) from an INI-style file via
// github.com/gravwell/gcfg, with NASDAQ_*-prefixed environment variable
// overrides -- ambient wiring for example/CLI-less programmatic use (spec
// §10). Neither soup.Dial nor fix.Connect requires a config file; this
// package exists for callers that want one.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gravwell/gcfg"
)

const maxConfigSize int64 = 4 * 1024 * 1024

var (
	ErrConfigFileTooLarge = errors.New("config: file is too large")
	ErrFailedFileRead     = errors.New("config: failed to read entire file")
)

// Global holds the [global] section of a session config file.
type Global struct {
	Host               string
	Port               uint16
	User               string
	Password           string
	Session            string
	Sequence           string
	Connect_Timeout_Sec int
	Client_Heartbeat_Sec int
	Server_Heartbeat_Sec int
	Tolerated_Missed_Heartbeats int
	Compression          bool
}

// Config is the top-level structure gcfg parses a session config file
// into: a single `[global]` section.
type Config struct {
	Global Global
}

// Load reads, parses, and environment-overrides a config file at path.
func Load(path string) (*Config, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(b)
}

// LoadBytes parses b as a config file and applies NASDAQ_* environment
// overrides.
func LoadBytes(b []byte) (*Config, error) {
	if int64(len(b)) > maxConfigSize {
		return nil, ErrConfigFileTooLarge
	}
	var cfg Config
	if err := gcfg.ReadStringInto(&cfg, string(b)); err != nil {
		return nil, fmt.Errorf("config: parse failed: %w", err)
	}
	if err := EnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	fin, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, ErrConfigFileTooLarge
	}

	bb := bytes.NewBuffer(nil)
	n, err := io.Copy(bb, fin)
	if err != nil {
		return nil, err
	}
	if n != fi.Size() {
		return nil, ErrFailedFileRead
	}
	return bb.Bytes(), nil
}

// EnvOverrides applies NASDAQ_*-prefixed environment variables to cfg: env
// var, else NAME_FILE pointing at a secrets file, else leave as-is. The
// string fields and Port are only filled when still empty/zero, so values
// already set by the file are kept; Compression is overwritten whenever
// its variable is set.
func EnvOverrides(cfg *Config) error {
	loadEnvString(&cfg.Global.Host, "NASDAQ_HOST")
	loadEnvString(&cfg.Global.User, "NASDAQ_USER")
	loadEnvString(&cfg.Global.Password, "NASDAQ_PASSWORD")
	loadEnvString(&cfg.Global.Session, "NASDAQ_SESSION")
	loadEnvString(&cfg.Global.Sequence, "NASDAQ_SEQUENCE")
	if err := loadEnvUint16(&cfg.Global.Port, "NASDAQ_PORT"); err != nil {
		return err
	}
	if err := loadEnvBool(&cfg.Global.Compression, "NASDAQ_COMPRESSION"); err != nil {
		return err
	}
	return nil
}

// ConnectTimeout, ClientHeartbeat, ServerHeartbeat translate the config's
// integer-seconds fields into time.Duration for soup.DialOptions/
// fix.SessionOptions.
func (g Global) ConnectTimeout() time.Duration {
	return time.Duration(g.Connect_Timeout_Sec) * time.Second
}

func (g Global) ClientHeartbeat() time.Duration {
	return time.Duration(g.Client_Heartbeat_Sec) * time.Second
}

func (g Global) ServerHeartbeat() time.Duration {
	return time.Duration(g.Server_Heartbeat_Sec) * time.Second
}
