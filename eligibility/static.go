package eligibility

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Content is one piece of content the Static source knows about.
type Content struct {
	OwnerID   string
	CreatedAt time.Time
}

// Static answers eligibility lookups from fixed in-memory data. Dev mode
// and tests use it in place of the community database.
type Static struct {
	mu        sync.RWMutex
	contents  map[string]Content
	activated map[string]bool
}

// NewStatic returns an empty static source.
func NewStatic() *Static {
	return &Static{
		contents:  make(map[string]Content),
		activated: make(map[string]bool),
	}
}

// SetContent records the owner and creation time of a piece of content.
func (s *Static) SetContent(contentID, ownerID string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[contentID] = Content{OwnerID: ownerID, CreatedAt: createdAt}
}

// SetActivated records whether a user completed activation.
func (s *Static) SetActivated(userID string, activated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated[userID] = activated
}

func (s *Static) ContentOwner(_ context.Context, contentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[contentID]
	if !ok {
		return "", fmt.Errorf("%w: content %s", ErrNotFound, contentID)
	}
	return c.OwnerID, nil
}

func (s *Static) ContentCreatedAt(_ context.Context, contentID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[contentID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: content %s", ErrNotFound, contentID)
	}
	return c.CreatedAt, nil
}

func (s *Static) ReferralActivated(_ context.Context, inviteeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activated[inviteeID], nil
}
