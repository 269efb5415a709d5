// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential persists the Matrix session credentials obtained
// from a password login so that restarts reuse the access token
// instead of logging in again.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/meetbot-project/meetbot/lib/ref"
	"github.com/meetbot-project/meetbot/lib/secret"
)

// Credentials is the stored session state. The file holds the access
// token in the clear, so Save restricts it to the owning user.
type Credentials struct {
	HomeserverURL string     `json:"homeserver_url"`
	UserID        ref.UserID `json:"user_id"`
	AccessToken   string     `json:"access_token"`
	DeviceID      string     `json:"device_id"`
}

// Load reads stored credentials from path. A missing or unreadable
// file is not an error: the caller falls back to a fresh password
// login, and the reason is logged so an operator can tell a first run
// from a corrupt file.
func Load(path string, logger *slog.Logger) *Credentials {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("no stored credentials, will log in", "path", path)
		} else {
			logger.Warn("cannot read stored credentials, will log in",
				"path", path, "error", err)
		}
		return nil
	}
	defer secret.Zero(data)

	var credentials Credentials
	if err := json.Unmarshal(data, &credentials); err != nil {
		logger.Warn("stored credentials are malformed, will log in",
			"path", path, "error", err)
		return nil
	}
	if credentials.AccessToken == "" || credentials.UserID.IsZero() {
		logger.Warn("stored credentials are incomplete, will log in", "path", path)
		return nil
	}
	return &credentials
}

// Save writes credentials to path, readable only by the owning user.
// The marshaled bytes are zeroed because they contain the access
// token.
func Save(path string, credentials *Credentials) error {
	data, err := json.MarshalIndent(credentials, "", "    ")
	if err != nil {
		return fmt.Errorf("credential: encoding: %w", err)
	}
	defer secret.Zero(data)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("credential: writing %s: %w", path, err)
	}
	return nil
}
