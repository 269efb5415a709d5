// Copyright 2026 The Meetbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package agenda persists the ordered queue of meeting topics.
//
// The queue is a JSON array of strings in a single file, oldest topic
// first. Every mutation reads the current file contents and rewrites
// the whole file — there are no partial updates. An absent file is an
// empty queue. The store assumes a single writer: the bot process owns
// the file exclusively.
//
// A file that exists but does not decode as a JSON string array is an
// error from every operation. Corrupt state is never silently read as
// empty — the operator decides whether to repair or remove the file.
package agenda

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Store is a topic queue backed by a JSON file.
type Store struct {
	path string
}

// NewStore creates a Store backed by the file at path. The file is not
// created until the first mutation.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Topics returns the queued topics, oldest first. An absent backing
// file is an empty queue, not an error.
func (s *Store) Topics() ([]string, error) {
	return s.read()
}

// Add appends a topic to the end of the queue and rewrites the file.
func (s *Store) Add(topic string) error {
	topics, err := s.read()
	if err != nil {
		return err
	}
	return s.write(append(topics, topic))
}

// Clear replaces the queue with an empty one and rewrites the file.
func (s *Store) Clear() error {
	return s.write([]string{})
}

// PopFront removes and returns the oldest topic, rewriting the
// remainder. The second return value is false when the queue is empty
// — the expected "no topics" path, distinct from a storage failure.
// Popping an empty queue still rewrites the file so that it holds an
// empty array rather than staying absent.
func (s *Store) PopFront() (string, bool, error) {
	topics, err := s.read()
	if err != nil {
		return "", false, err
	}
	if len(topics) == 0 {
		if err := s.write([]string{}); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	if err := s.write(topics[1:]); err != nil {
		return "", false, err
	}
	return topics[0], true, nil
}

func (s *Store) read() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("agenda: reading topics from %s: %w", s.path, err)
	}

	var topics []string
	if err := json.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("agenda: topics file %s is corrupt: %w", s.path, err)
	}
	return topics, nil
}

func (s *Store) write(topics []string) error {
	data, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("agenda: marshaling topics: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("agenda: writing topics to %s: %w", s.path, err)
	}
	return nil
}
