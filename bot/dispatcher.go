// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meetbot-project/meetbot/agenda"
	"github.com/meetbot-project/meetbot/lib/ref"
	"github.com/meetbot-project/meetbot/messaging"
)

// helpText is the fixed command reference sent in reply to #help.
const helpText = `Commands:

#topic      - Add a new weekly topic
#list       - List weekly topics
#start      - Start the meeting
#next       - Move onto next topic
#end        - Finish the meeting
#clear      - Clear all remaining topics
#help       - Show this help text`

// Sender delivers a plain text message to a room. Implemented by
// *messaging.Session via SessionSender; tests substitute a recording
// fake.
type Sender interface {
	SendText(ctx context.Context, roomID ref.RoomID, body string) error
}

// SessionSender adapts a *messaging.Session to the Sender interface.
type SessionSender struct {
	Session *messaging.Session
}

// SendText sends body as an m.text room message.
func (s SessionSender) SendText(ctx context.Context, roomID ref.RoomID, body string) error {
	_, err := s.Session.SendMessage(ctx, roomID, messaging.NewTextMessage(body))
	return err
}

// DispatcherConfig holds the collaborators for a Dispatcher.
type DispatcherConfig struct {
	// RoomID is the one room the bot serves. Events from any other
	// room are ignored unconditionally.
	RoomID ref.RoomID

	// Store is the topic queue.
	Store *agenda.Store

	// Sender delivers replies to the room.
	Sender Sender

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Dispatcher maps inbound text messages to topic-queue operations and
// replies. One instance serves exactly one room.
//
// Dispatcher is not safe for concurrent use; the sync loop delivers
// events sequentially, which is the only supported calling pattern.
type Dispatcher struct {
	roomID ref.RoomID
	store  *agenda.Store
	sender Sender
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.RoomID.IsZero() {
		return nil, fmt.Errorf("bot: RoomID is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("bot: Store is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("bot: Sender is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		roomID: config.RoomID,
		store:  config.Store,
		sender: config.Sender,
		logger: logger,
	}, nil
}

// HandleEvent processes one inbound event. Non-text events, events
// from other rooms, and messages that are not commands are ignored.
// Storage and send failures are logged and never propagate — a faulty
// command leaves the dispatch loop running.
func (d *Dispatcher) HandleEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	if roomID != d.roomID {
		return
	}

	body, ok := event.TextBody()
	if !ok {
		return
	}

	message := strings.TrimSpace(body)
	if !strings.HasPrefix(message, "#") {
		return
	}

	// Longest shared-prefix command first: "#topic " before any other
	// match so a topic whose text begins with a command word is never
	// misrouted.
	switch {
	case strings.HasPrefix(message, "#topic "):
		topic := message[len("#topic "):]
		if err := d.store.Add(topic); err != nil {
			d.logger.Error("adding topic failed", "error", err)
			return
		}
		d.logger.Info("topic added", "topic", topic, "sender", event.Sender)
		d.reply(ctx, fmt.Sprintf("Added topic '%s'", topic))

	case strings.HasPrefix(message, "#help"):
		d.reply(ctx, helpText)

	case strings.HasPrefix(message, "#list"):
		topics, err := d.store.Topics()
		if err != nil {
			d.logger.Error("listing topics failed", "error", err)
			return
		}
		var rendered strings.Builder
		for index, topic := range topics {
			fmt.Fprintf(&rendered, "%d. %s\n", index+1, topic)
		}
		d.reply(ctx, rendered.String())

	case strings.HasPrefix(message, "#start"):
		d.reply(ctx, "Meeting started.")
		d.nextTopic(ctx)

	case strings.HasPrefix(message, "#next"):
		d.nextTopic(ctx)

	case strings.HasPrefix(message, "#clear"):
		if err := d.store.Clear(); err != nil {
			d.logger.Error("clearing topics failed", "error", err)
			return
		}
		d.reply(ctx, "Topics cleared.")

	case strings.HasPrefix(message, "#end"):
		d.reply(ctx, "Meeting stopped.")

	default:
		// Unrecognized commands are operator-visible only.
		d.logger.Info("unhandled command",
			"room_id", roomID,
			"sender", event.Sender,
			"body", body,
		)
	}
}

// nextTopic pops the queue and announces the result. Shared by #next
// and #start — there is no tracked "meeting in progress" state, #start
// just adds its own announcement first.
func (d *Dispatcher) nextTopic(ctx context.Context) {
	topic, ok, err := d.store.PopFront()
	if err != nil {
		d.logger.Error("advancing topic failed", "error", err)
		return
	}
	if !ok {
		d.reply(ctx, "No topics")
		return
	}
	d.reply(ctx, "Current topic is: "+topic)
}

// reply sends a message to the bot's room. Send failures are caught
// here, logged, and never propagated: the event's processing completes
// without a reply rather than crashing the dispatch loop.
func (d *Dispatcher) reply(ctx context.Context, body string) {
	if err := d.sender.SendText(ctx, d.roomID, body); err != nil {
		d.logger.Error("sending reply failed",
			"room_id", d.roomID,
			"error", err,
		)
	}
}
