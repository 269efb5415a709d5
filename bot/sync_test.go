// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/meetbot-project/meetbot/lib/clock"
	"github.com/meetbot-project/meetbot/lib/ref"
	"github.com/meetbot-project/meetbot/lib/testutil"
	"github.com/meetbot-project/meetbot/messaging"
)

// scriptedSession answers Sync from a per-call script. Calls beyond the
// script get the last entry's behavior.
type scriptedSession struct {
	mu          sync.Mutex
	script      []func(messaging.SyncOptions) (*messaging.SyncResponse, error)
	calls       []messaging.SyncOptions
	callTimes   []time.Time
	clk         clock.Clock
	idleCloses  int
	callStarted chan struct{}
}

func (s *scriptedSession) Sync(_ context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, options)
	if s.clk != nil {
		s.callTimes = append(s.callTimes, s.clk.Now())
	}
	index := len(s.calls) - 1
	if index >= len(s.script) {
		index = len(s.script) - 1
	}
	step := s.script[index]
	started := s.callStarted
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	return step(options)
}

func (s *scriptedSession) CloseIdleConnections() {
	s.mu.Lock()
	s.idleCloses++
	s.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestInitialSync(t *testing.T) {
	session := &scriptedSession{
		script: []func(messaging.SyncOptions) (*messaging.SyncResponse, error){
			func(options messaging.SyncOptions) (*messaging.SyncResponse, error) {
				if options.Since != "" {
					t.Errorf("initial sync sent since token %q", options.Since)
				}
				if options.SetTimeout {
					t.Error("initial sync requested a long-poll timeout")
				}
				return &messaging.SyncResponse{NextBatch: "s1"}, nil
			},
		},
	}

	next, response, err := InitialSync(context.Background(), session, "{}")
	if err != nil {
		t.Fatalf("InitialSync failed: %v", err)
	}
	if next != "s1" {
		t.Errorf("next batch = %q, want s1", next)
	}
	if response == nil {
		t.Fatal("expected a non-nil response")
	}
}

func TestInitialSyncError(t *testing.T) {
	syncErr := errors.New("connection refused")
	session := &scriptedSession{
		script: []func(messaging.SyncOptions) (*messaging.SyncResponse, error){
			func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
				return nil, syncErr
			},
		},
	}

	_, _, err := InitialSync(context.Background(), session, "")
	if !errors.Is(err, syncErr) {
		t.Errorf("expected wrapped sync error, got %v", err)
	}
}

func TestRunSyncLoopDeliversAndAdvancesSince(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := textEvent("#help")
	session := &scriptedSession{}
	session.script = []func(messaging.SyncOptions) (*messaging.SyncResponse, error){
		func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
			response := &messaging.SyncResponse{NextBatch: "s2"}
			response.Rooms.Join = map[ref.RoomID]messaging.JoinedRoom{
				botRoom: {
					Timeline: messaging.TimelineSection{Events: []messaging.Event{event}},
				},
			}
			return response, nil
		},
		func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
			cancel()
			return nil, ctx.Err()
		},
	}

	var delivered []*messaging.SyncResponse
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunSyncLoop(ctx, session, SyncConfig{Filter: "{}", Timeout: 15000}, "s1",
			func(_ context.Context, response *messaging.SyncResponse) {
				delivered = append(delivered, response)
			},
			clock.Real(), discardLogger())
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "sync loop exit")

	if len(delivered) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(delivered))
	}
	if len(session.calls) != 2 {
		t.Fatalf("expected 2 sync calls, got %d", len(session.calls))
	}
	first, second := session.calls[0], session.calls[1]
	if first.Since != "s1" || second.Since != "s2" {
		t.Errorf("since tokens = %q, %q; want s1, s2", first.Since, second.Since)
	}
	if !first.SetTimeout || first.Timeout != 15000 {
		t.Errorf("first call timeout = %v/%d, want true/15000", first.SetTimeout, first.Timeout)
	}
	if first.Filter != "{}" {
		t.Errorf("filter = %q, want {}", first.Filter)
	}
}

func TestRunSyncLoopBacksOffExponentially(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fakeClock := clock.Fake(time.Unix(0, 0))
	session := &scriptedSession{
		clk:         fakeClock,
		callStarted: make(chan struct{}, 16),
		script: []func(messaging.SyncOptions) (*messaging.SyncResponse, error){
			func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
				return nil, errors.New("gateway timeout")
			},
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunSyncLoop(ctx, session, SyncConfig{}, "",
			func(context.Context, *messaging.SyncResponse) {
				t.Error("handler ran despite sync failures")
			},
			fakeClock, discardLogger())
	}()

	// Attempt 1 fails immediately, then the loop sleeps 1s, 2s, 4s
	// before attempts 2, 3, 4.
	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 1")
	for _, backoff := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(backoff)
		testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt after %v backoff", backoff)
	}

	fakeClock.WaitForTimers(1)
	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "sync loop exit")

	session.mu.Lock()
	defer session.mu.Unlock()
	wantTimes := []time.Time{
		time.Unix(0, 0),
		time.Unix(1, 0),
		time.Unix(3, 0),
		time.Unix(7, 0),
	}
	if !reflect.DeepEqual(session.callTimes, wantTimes) {
		t.Errorf("attempt times = %v, want %v", session.callTimes, wantTimes)
	}
	if session.idleCloses != 4 {
		t.Errorf("idle connections closed %d times, want 4", session.idleCloses)
	}
}

func TestRunSyncLoopBackoffCapsAtMax(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fakeClock := clock.Fake(time.Unix(0, 0))
	session := &scriptedSession{
		clk:         fakeClock,
		callStarted: make(chan struct{}, 16),
		script: []func(messaging.SyncOptions) (*messaging.SyncResponse, error){
			func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
				return nil, errors.New("still down")
			},
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunSyncLoop(ctx, session, SyncConfig{MaxBackoff: 2 * time.Second}, "",
			func(context.Context, *messaging.SyncResponse) {},
			fakeClock, discardLogger())
	}()

	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 1")
	// 1s, then 2s, then capped at 2s.
	for _, backoff := range []time.Duration{time.Second, 2 * time.Second, 2 * time.Second} {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(backoff)
		testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt after %v backoff", backoff)
	}

	fakeClock.WaitForTimers(1)
	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "sync loop exit")
}

func TestRunSyncLoopResetsBackoffAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fakeClock := clock.Fake(time.Unix(0, 0))
	session := &scriptedSession{
		clk:         fakeClock,
		callStarted: make(chan struct{}, 16),
	}
	failure := func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
		return nil, errors.New("transient")
	}
	success := func(messaging.SyncOptions) (*messaging.SyncResponse, error) {
		return &messaging.SyncResponse{NextBatch: "s9"}, nil
	}
	session.script = []func(messaging.SyncOptions) (*messaging.SyncResponse, error){
		failure, failure, success, failure, failure,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunSyncLoop(ctx, session, SyncConfig{}, "",
			func(context.Context, *messaging.SyncResponse) {},
			fakeClock, discardLogger())
	}()

	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 1")
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 2")
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Second)
	// Attempt 3 succeeds, attempt 4 fails and the backoff is back to 1s.
	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 3")
	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 4")
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	testutil.RequireReceive(t, session.callStarted, 5*time.Second, "attempt 5")

	fakeClock.WaitForTimers(1)
	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "sync loop exit")
}
