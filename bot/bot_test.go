// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetbot-project/meetbot/agenda"
	"github.com/meetbot-project/meetbot/lib/testutil"
	"github.com/meetbot-project/meetbot/messaging"
)

// TestBotRunEndToEnd drives a Bot against a mock homeserver: the
// second /sync delivers a #topic command, and the test waits for the
// bot's reply PUT before shutting the loop down.
func TestBotRunEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sentBodies := make(chan string, 4)
	var syncCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/_matrix/client/v3/sync", func(w http.ResponseWriter, r *http.Request) {
		switch call := syncCalls.Add(1); call {
		case 1:
			if r.URL.Query().Get("since") != "" {
				t.Errorf("initial sync sent a since token")
			}
			writeSyncJSON(w, `{"next_batch": "s0"}`)
		case 2:
			if got := r.URL.Query().Get("since"); got != "s0" {
				t.Errorf("second sync since = %q, want s0", got)
			}
			writeSyncJSON(w, fmt.Sprintf(`{
				"next_batch": "s1",
				"rooms": {
					"join": {
						"%s": {
							"timeline": {
								"events": [{
									"event_id": "$cmd",
									"type": "m.room.message",
									"sender": "%s",
									"content": {"msgtype": "m.text", "body": "#topic release planning"}
								}]
							}
						}
					}
				}
			}`, botRoom, alice))
		default:
			// Park the long-poll until the client gives up.
			<-r.Context().Done()
		}
	})
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/send/m.room.message/") {
			t.Errorf("unexpected PUT path %s", r.URL.Path)
		}
		var content messaging.MessageContent
		if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
			t.Errorf("decoding message content: %v", err)
		}
		sentBodies <- content.Body
		writeSyncJSON(w, `{"event_id": "$reply"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: server.URL,
		Logger:        discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(alice, "test-token", "DEV1")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	defer session.Close()

	store := agenda.NewStore(filepath.Join(t.TempDir(), "topics.json"))
	meetbot, err := New(Config{
		Session: session,
		RoomID:  botRoom,
		Store:   store,
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := meetbot.Run(ctx); err != nil {
			t.Errorf("Run failed: %v", err)
		}
	}()

	body := testutil.RequireReceive(t, sentBodies, 5*time.Second, "bot reply")
	if body != "Added topic 'release planning'" {
		t.Errorf("reply = %q, want Added topic 'release planning'", body)
	}

	topics, err := store.Topics()
	if err != nil {
		t.Fatalf("Topics failed: %v", err)
	}
	if len(topics) != 1 || topics[0] != "release planning" {
		t.Errorf("Topics() = %v, want [release planning]", topics)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "bot shutdown")
}

func TestBotRunFailsWhenInitialSyncFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errcode": "M_FORBIDDEN", "error": "no"}`)
	}))
	defer server.Close()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: server.URL,
		Logger:        discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(alice, "test-token", "DEV1")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	defer session.Close()

	meetbot, err := New(Config{
		Session: session,
		RoomID:  botRoom,
		Store:   agenda.NewStore(filepath.Join(t.TempDir(), "topics.json")),
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := meetbot.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail when the initial sync is rejected")
	}
}

func TestNewRequiresSession(t *testing.T) {
	_, err := New(Config{
		RoomID: botRoom,
		Store:  agenda.NewStore(filepath.Join(t.TempDir(), "topics.json")),
	})
	if err == nil {
		t.Fatal("expected an error for a missing session")
	}
}

func writeSyncJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}
