// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bot's JSONC configuration file.
//
// Configuration is loaded from a single file specified by:
//   - MEETBOT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The file is standard
// JSON extended with // line comments, /* block comments */, and
// trailing commas:
//
//	{
//	    "homeserver_url": "https://matrix.example.org",
//	    "user_id": "@meetbot:example.org",
//	    "password": "hunter2",
//	    // Room ID (!abc:server) or alias (#meetings:server).
//	    "room": "#meetings:example.org",
//	}
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/meetbot-project/meetbot/lib/ref"
	"github.com/meetbot-project/meetbot/lib/secret"
)

// EnvVar is the environment variable naming the config file when the
// --config flag is absent.
const EnvVar = "MEETBOT_CONFIG"

// Default file locations relative to the working directory, used when
// the config file leaves them unset.
const (
	DefaultCredentialsFile = "credentials.json"
	DefaultTopicsFile      = "topics.json"
)

// DefaultSyncTimeoutMS is the /sync long-poll timeout when the config
// file does not override it.
const DefaultSyncTimeoutMS = 30000

// Config is the validated bot configuration. The password lives in a
// locked secret buffer; callers must Close it when login is done.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver.
	HomeserverURL string

	// UserID is the bot's fully qualified Matrix user ID.
	UserID ref.UserID

	// Password authenticates the bot when no stored credentials are
	// available.
	Password *secret.Buffer

	// Room is the one room the bot serves: a room ID (!abc:server)
	// or an alias (#meetings:server) to resolve at startup.
	Room string

	// CredentialsFile is where the access token from a successful
	// login is persisted.
	CredentialsFile string

	// TopicsFile is the JSON file backing the topic queue.
	TopicsFile string

	// SyncTimeoutMS is the /sync long-poll timeout in milliseconds.
	SyncTimeoutMS int
}

// RoomIsAlias reports whether Room names an alias that must be
// resolved to a room ID before use.
func (c *Config) RoomIsAlias() bool {
	return strings.HasPrefix(c.Room, "#")
}

// Close releases the password buffer. Safe to call more than once.
func (c *Config) Close() {
	if c.Password != nil {
		c.Password.Close()
	}
}

// Locate returns the config file path from the --config flag value or
// the MEETBOT_CONFIG environment variable, flag winning.
func Locate(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if path := os.Getenv(EnvVar); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("config: no config file: pass --config or set %s", EnvVar)
}

// fileConfig is the raw on-disk shape before validation.
type fileConfig struct {
	HomeserverURL   string `json:"homeserver_url"`
	UserID          string `json:"user_id"`
	Password        string `json:"password"`
	Room            string `json:"room"`
	CredentialsFile string `json:"credentials_file"`
	TopicsFile      string `json:"topics_file"`
	SyncTimeoutMS   int    `json:"sync_timeout_ms"`
}

// Load reads, parses, and validates the configuration at path. The
// raw file bytes are zeroed before returning because they contain the
// password.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	defer secret.Zero(data)

	// Strip comments and trailing commas before parsing as standard
	// JSON. The stripped copy also holds the password, so zero it too.
	stripped := jsonc.ToJSON(data)
	defer secret.Zero(stripped)

	var raw fileConfig
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	config, err := fromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return config, nil
}

func fromRaw(raw fileConfig) (*Config, error) {
	if raw.HomeserverURL == "" {
		return nil, fmt.Errorf("homeserver_url is required")
	}
	parsed, err := url.Parse(raw.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("homeserver_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("homeserver_url must use http or https, got %q", raw.HomeserverURL)
	}

	if raw.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	userID, err := ref.ParseUserID(raw.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}

	if raw.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	if raw.Room == "" {
		return nil, fmt.Errorf("room is required")
	}
	switch {
	case strings.HasPrefix(raw.Room, "!"):
		if _, err := ref.ParseRoomID(raw.Room); err != nil {
			return nil, fmt.Errorf("room: %w", err)
		}
	case strings.HasPrefix(raw.Room, "#"):
		if _, err := ref.ParseRoomAlias(raw.Room); err != nil {
			return nil, fmt.Errorf("room: %w", err)
		}
	default:
		return nil, fmt.Errorf("room must be a room ID (!...) or alias (#...), got %q", raw.Room)
	}

	if raw.SyncTimeoutMS < 0 {
		return nil, fmt.Errorf("sync_timeout_ms must not be negative, got %d", raw.SyncTimeoutMS)
	}

	password, err := secret.NewFromBytes([]byte(raw.Password))
	if err != nil {
		return nil, fmt.Errorf("protecting password: %w", err)
	}

	config := &Config{
		HomeserverURL:   strings.TrimRight(raw.HomeserverURL, "/"),
		UserID:          userID,
		Password:        password,
		Room:            raw.Room,
		CredentialsFile: raw.CredentialsFile,
		TopicsFile:      raw.TopicsFile,
		SyncTimeoutMS:   raw.SyncTimeoutMS,
	}
	if config.CredentialsFile == "" {
		config.CredentialsFile = DefaultCredentialsFile
	}
	if config.TopicsFile == "" {
		config.TopicsFile = DefaultTopicsFile
	}
	if config.SyncTimeoutMS == 0 {
		config.SyncTimeoutMS = DefaultSyncTimeoutMS
	}
	return config, nil
}
