// Package memory implements the event store over an in-process slice.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"demandstage/internal/event/models"
	"demandstage/pkg/platform/sentinel"
)

// Store keeps events in insertion order behind a mutex.
type Store struct {
	mu     sync.RWMutex
	events []*models.Event
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *Store {
	return &Store{}
}

// Insert adds an event.
func (s *Store) Insert(_ context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *event
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
		event.ID = stored.ID
	}
	s.events = append(s.events, &stored)
	return nil
}

// Get returns one event by ID.
func (s *Store) Get(_ context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("get event: %w", sentinel.ErrNotFound)
}

// List returns all events in insertion order.
func (s *Store) List(_ context.Context) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Event, 0, len(s.events))
	for _, e := range s.events {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// Delete removes one event by ID.
func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete event: %w", sentinel.ErrNotFound)
}
