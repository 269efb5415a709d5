// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meetbot-project/meetbot/agenda"
	"github.com/meetbot-project/meetbot/lib/clock"
	"github.com/meetbot-project/meetbot/lib/ref"
	"github.com/meetbot-project/meetbot/messaging"
)

// Config holds the collaborators for a Bot.
type Config struct {
	// Session is the authenticated Matrix session.
	Session *messaging.Session

	// RoomID is the one room the bot serves.
	RoomID ref.RoomID

	// Store is the topic queue.
	Store *agenda.Store

	// SyncTimeout is the /sync long-poll timeout in milliseconds.
	// Zero uses the 30-second default.
	SyncTimeout int

	// Clock drives retry backoff. If nil, the real clock is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

/// Bot is the assembled meeting bot: a dispatcher fed by the /sync loop.
type Bot struct {
	session     *messaging.Session
	roomID      ref.RoomID
	dispatcher  *Dispatcher
	filter      string
	syncTimeout int
	clock       clock.Clock
	logger      *slog.Logger
}

// New assembles a Bot from an authenticated session, a room, and a
// topic store.
func New(config Config) (*Bot, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("bot: Session is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	dispatcher, err := NewDispatcher(DispatcherConfig{
		RoomID: config.RoomID,
		Store:  config.Store,
		Sender: SessionSender{Session: config.Session},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	// Only text messages in the bot's room matter; everything else is
	// filtered out server-side.
	filter := messaging.BuildRoomFilter(config.RoomID, &messaging.SyncFilter{
		TimelineTypes: []string{messaging.EventTypeRoomMessage},
		ExcludeState:  true,
	})

	return &Bot{
		session:     config.Session,
		roomID:      config.RoomID,
		dispatcher:  dispatcher,
		filter:      filter,
		syncTimeout: config.SyncTimeout,
		clock:       clk,
		logger:      logger,
	}, nil
}

// Run performs the initial sync and then processes incremental sync
// responses until ctx is cancelled. The initial response's timeline is
// discarded: commands sent while the bot was down are not replayed.
func (b *Bot) Run(ctx context.Context) error {
	sinceToken, _, err := InitialSync(ctx, b.session, b.filter)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	b.logger.Info("initial sync complete", "room_id", b.roomID)

	RunSyncLoop(ctx, b.session, SyncConfig{
		Filter:  b.filter,
		Timeout: b.syncTimeout,
	}, sinceToken, b.handleSyncResponse, b.clock, b.logger)

	return nil
}

// handleSyncResponse feeds every timeline event to the dispatcher. The
// dispatcher re-checks the room ID, so a homeserver that ignores the
// sync filter still cannot make the bot act on another room's traffic.
func (b *Bot) handleSyncResponse(ctx context.Context, response *messaging.SyncResponse) {
	for roomID, joined := range response.Rooms.Join {
		for _, event := range joined.Timeline.Events {
			b.dispatcher.HandleEvent(ctx, roomID, event)
		}
	}
}
