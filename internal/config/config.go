// Package config reads the COTOAMI_-prefixed environment configuration
// described in spec.md §6. This is hand-rolled over os.Getenv rather than
// pulled from a library: the pack's only configuration-shaped dependency is
// spf13/pflag (CLI flags, wired into cmd/cotoamid instead), and no example
// repo reaches for an env-config library for service settings, so there is
// no third-party surface to generalize here. See DESIGN.md.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const prefix = "COTOAMI_"
const serverPrefix = "COTOAMI_SERVER_"

// Config holds every recognized COTOAMI_ setting.
type Config struct {
	DBDir                   string
	NodeName                string
	OwnerPassword           string
	OwnerRemoteNodeID       string
	OwnerRemoteNodePassword string
	SessionMinutes          int
	ChangesChunkSize        int
	MaxMessageSizeAsClient  int64
	MaxMessageSizeAsServer  int64
	PluginsDir              string

	Server ServerConfig
}

// ServerConfig holds the COTOAMI_SERVER_-prefixed settings.
type ServerConfig struct {
	Port            int
	URLScheme       string
	URLHost         string
	URLPort         int
	EnableWebSocket bool
}

// SessionDuration returns SessionMinutes as a time.Duration.
func (c Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionMinutes) * time.Minute
}

// FromEnv reads the Config from the process environment, applying the
// documented defaults for anything unset.
func FromEnv() (Config, error) {
	c := Config{
		DBDir:                  getenv(prefix+"DB_DIR", "./cotoami-db"),
		NodeName:               getenv(prefix+"NODE_NAME", ""),
		OwnerPassword:          getenv(prefix+"OWNER_PASSWORD", ""),
		OwnerRemoteNodeID:      getenv(prefix+"OWNER_REMOTE_NODE_ID", ""),
		OwnerRemoteNodePassword: getenv(prefix+"OWNER_REMOTE_NODE_PASSWORD", ""),
		PluginsDir:             getenv(prefix+"PLUGINS_DIR", ""),
		Server: ServerConfig{
			URLScheme: getenv(serverPrefix+"URL_SCHEME", "http"),
			URLHost:   getenv(serverPrefix+"URL_HOST", "localhost"),
		},
	}

	var err error
	if c.SessionMinutes, err = getenvInt(prefix+"SESSION_MINUTES", 1440); err != nil {
		return c, err
	}
	if c.ChangesChunkSize, err = getenvInt(prefix+"CHANGES_CHUNK_SIZE", 30); err != nil {
		return c, err
	}
	if c.MaxMessageSizeAsClient, err = getenvInt64(prefix+"MAX_MESSAGE_SIZE_AS_CLIENT", 1<<30); err != nil {
		return c, err
	}
	if c.MaxMessageSizeAsServer, err = getenvInt64(prefix+"MAX_MESSAGE_SIZE_AS_SERVER", 64<<20); err != nil {
		return c, err
	}
	if c.Server.Port, err = getenvInt(serverPrefix+"PORT", 5103); err != nil {
		return c, err
	}
	if c.Server.URLPort, err = getenvInt(serverPrefix+"URL_PORT", c.Server.Port); err != nil {
		return c, err
	}
	if c.Server.EnableWebSocket, err = getenvBool(serverPrefix+"ENABLE_WEBSOCKET", true); err != nil {
		return c, err
	}

	if len(c.NodeName) > 50 {
		return c, fmt.Errorf("%sNODE_NAME must be 1-50 characters", prefix)
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func getenvInt64(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return b, nil
}
