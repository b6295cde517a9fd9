package api

import (
	"context"
	"time"

	"github.com/matheus3301/rentchat/internal/store"
)

// SessionService implements rentchat.v1.SessionService.
type SessionService struct {
	sessionName string
	userID      string
	startedAt   time.Time
	engine      Engine
	db          *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName, userID string, e Engine, db *store.DB) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		userID:      userID,
		startedAt:   time.Now(),
		engine:      e,
		db:          db,
	}
}

func (s *SessionService) GetStatus(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	c := s.engine.Connectivity(ctx)
	resp := &StatusResponse{
		Session:   s.sessionName,
		UserID:    s.userID,
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
		Messaging: fromChannel(c.Messaging),
		Presence:  fromChannel(c.Presence),
		Current:   c.Current,
	}

	if pending, err := s.engine.Pending(ctx); err == nil {
		resp.PendingSends = len(pending)
	}

	// Populate counts from store.
	if s.db != nil {
		if n, err := s.db.ConversationCount(); err == nil {
			resp.ConversationCount = n
		}
		if n, err := s.db.MessageCount(); err == nil {
			resp.MessageCount = n
		}
	}

	return resp, nil
}

// ListPresence returns live presence, falling back to the journal for users
// not seen since the daemon started.
func (s *SessionService) ListPresence(ctx context.Context, _ *Empty) (*PresenceResponse, error) {
	live, err := s.engine.Presence(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &PresenceResponse{}
	seen := make(map[string]bool, len(live))
	for _, e := range live {
		seen[e.UserID] = true
		resp.Users = append(resp.Users, fromPresence(e))
	}
	if s.db != nil {
		stored, err := s.db.ListPresence()
		if err != nil {
			return nil, toStatus(err)
		}
		for _, p := range stored {
			if seen[p.UserID] {
				continue
			}
			// Journaled status is stale: nobody is reported online from it.
			resp.Users = append(resp.Users, PresenceEntry{UserID: p.UserID, UserName: p.UserName, LastSeenMs: p.LastSeen})
		}
	}
	return resp, nil
}
