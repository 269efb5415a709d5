// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meetbot-project/meetbot/lib/clock"
	"github.com/meetbot-project/meetbot/messaging"
)

// SyncSession is the part of a Matrix session the sync loop needs.
// *messaging.Session implements it; tests substitute a scripted fake.
type SyncSession interface {
	Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)
}

// SyncConfig configures the Matrix /sync long-poll loop.
type SyncConfig struct {
	// Filter is the inline JSON filter restricting which events the
	// homeserver returns. Build it with messaging.BuildRoomFilter so
	// the stream is scoped to the bot's room.
	Filter string

	// Timeout is the long-poll timeout in milliseconds. The homeserver
	// holds the connection open for this duration when no events are
	// available, then returns an empty response. Default: 30000 (30s).
	Timeout int

	// MaxBackoff is the maximum duration between retry attempts on
	// /sync errors. The loop uses exponential backoff starting at
	// 1 second. Default: 30 seconds.
	MaxBackoff time.Duration
}

// SyncHandler is called for each incremental /sync response. The next
// poll starts after the handler returns, so handlers should not block
// for extended periods.
type SyncHandler func(ctx context.Context, response *messaging.SyncResponse)

// InitialSync performs the first Matrix /sync with no since token.
// Returns the next_batch token that anchors the incremental loop and
// the full response. The caller decides what, if anything, to do with
// the initial timeline; the bot discards it so a restart does not
// replay commands that were already handled.
//
// Unlike incremental sync, this returns immediately — the homeserver
// sends the current state without waiting for new events.
func InitialSync(ctx context.Context, session SyncSession, filter string) (string, *messaging.SyncResponse, error) {
	response, err := session.Sync(ctx, messaging.SyncOptions{
		Filter: filter,
	})
	if err != nil {
		return "", nil, fmt.Errorf("initial sync: %w", err)
	}
	return response.NextBatch, response, nil
}

// RunSyncLoop runs the incremental Matrix /sync long-poll loop. It
// polls the homeserver with the given since token and calls handler
// for each response. The loop continues until ctx is cancelled.
//
// Faults never stop the loop: it retries indefinitely with exponential
// backoff (1 second to config.MaxBackoff), logging the consecutive
// failure count. Idle HTTP connections are dropped after a failure if
// the session supports it, so the retry opens a fresh socket instead
// of reusing a poisoned pooled connection.
func RunSyncLoop(ctx context.Context, session SyncSession, config SyncConfig, sinceToken string, handler SyncHandler, clk clock.Clock, logger *slog.Logger) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30000
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := time.Second
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		options := messaging.SyncOptions{
			Since:      sinceToken,
			Timeout:    timeout,
			SetTimeout: true,
			Filter:     config.Filter,
		}

		response, err := session.Sync(ctx, options)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveFailures++
			if closer, ok := session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			logger.Error("sync failed, retrying",
				"error", err,
				"consecutive_failures", consecutiveFailures,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return
			case <-clk.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		consecutiveFailures = 0
		sinceToken = response.NextBatch

		handler(ctx, response)
	}
}
