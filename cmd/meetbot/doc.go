// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Command meetbot runs the Matrix meeting bot.
//
// The bot serves a single room and keeps a FIFO queue of discussion
// topics in a JSON file. Room members drive it with chat commands:
// #topic adds a topic, #list shows the queue, #start and #next walk
// through it, #clear empties it, and #help prints the command list.
//
// Configuration comes from a JSONC file named by --config or the
// MEETBOT_CONFIG environment variable. On first start the bot logs in
// with its configured password and stores the resulting access token
// next to its state; later starts reuse the token and fall back to a
// fresh login if the homeserver no longer accepts it.
//
// Usage:
//
//	meetbot --config /etc/meetbot.jsonc
package main
