// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meetbot-project/meetbot/agenda"
	"github.com/meetbot-project/meetbot/bot"
	"github.com/meetbot-project/meetbot/lib/config"
	"github.com/meetbot-project/meetbot/lib/credential"
	"github.com/meetbot-project/meetbot/lib/ref"
	"github.com/meetbot-project/meetbot/lib/version"
	"github.com/meetbot-project/meetbot/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to the config file (or set "+config.EnvVar+")")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("meetbot %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	path, err := config.Locate(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	defer cfg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     cfg.HomeserverURL,
		Logger:            logger,
		DeviceDisplayName: "meetbot",
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	session, err := establishSession(ctx, client, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	roomID, err := resolveRoom(ctx, session, cfg)
	if err != nil {
		return err
	}
	if _, err := session.JoinRoom(ctx, roomID); err != nil {
		return fmt.Errorf("joining %s: %w", roomID, err)
	}
	logger.Info("joined room", "room_id", roomID)

	meetbot, err := bot.New(bot.Config{
		Session:     session,
		RoomID:      roomID,
		Store:       agenda.NewStore(cfg.TopicsFile),
		SyncTimeout: cfg.SyncTimeoutMS,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.Info("meetbot running",
		"user_id", session.UserID(),
		"room_id", roomID,
		"topics_file", cfg.TopicsFile,
	)
	return meetbot.Run(ctx)
}

// establishSession reuses stored credentials when the homeserver
// still accepts them, and otherwise performs a fresh password login
// and stores the new access token. Only a failed fresh login is
// fatal.
func establishSession(ctx context.Context, client *messaging.Client, cfg *config.Config, logger *slog.Logger) (*messaging.Session, error) {
	if stored := credential.Load(cfg.CredentialsFile, logger); stored != nil {
		if stored.HomeserverURL != "" && stored.HomeserverURL != cfg.HomeserverURL {
			logger.Warn("stored credentials are for a different homeserver, will log in",
				"stored", stored.HomeserverURL, "configured", cfg.HomeserverURL)
		} else if session := restoreSession(ctx, client, stored, logger); session != nil {
			return session, nil
		}
	}

	session, err := client.Login(ctx, cfg.UserID.String(), cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", cfg.UserID, err)
	}
	logger.Info("logged in", "user_id", session.UserID(), "device_id", session.DeviceID())

	if err := credential.Save(cfg.CredentialsFile, &credential.Credentials{
		HomeserverURL: cfg.HomeserverURL,
		UserID:        session.UserID(),
		AccessToken:   session.AccessToken(),
		DeviceID:      session.DeviceID(),
	}); err != nil {
		// The session works; losing the file only costs a login on
		// the next restart.
		logger.Warn("cannot store credentials", "error", err)
	}
	return session, nil
}

// restoreSession validates a stored access token against the
// homeserver. Returns nil when the token is rejected so the caller
// falls back to a password login.
func restoreSession(ctx context.Context, client *messaging.Client, stored *credential.Credentials, logger *slog.Logger) *messaging.Session {
	session, err := client.SessionFromToken(stored.UserID, stored.AccessToken, stored.DeviceID)
	if err != nil {
		logger.Warn("cannot restore stored session", "error", err)
		return nil
	}
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		logger.Warn("stored access token rejected, will log in", "error", err)
		session.Close()
		return nil
	}
	logger.Info("restored session", "user_id", userID, "device_id", stored.DeviceID)
	return session
}

// resolveRoom turns the configured room into a room ID, resolving an
// alias through the homeserver directory when needed.
func resolveRoom(ctx context.Context, session *messaging.Session, cfg *config.Config) (ref.RoomID, error) {
	if !cfg.RoomIsAlias() {
		return ref.ParseRoomID(cfg.Room)
	}
	alias, err := ref.ParseRoomAlias(cfg.Room)
	if err != nil {
		return ref.RoomID{}, err
	}
	roomID, err := session.ResolveAlias(ctx, alias)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("resolving %s: %w", alias, err)
	}
	return roomID, nil
}
