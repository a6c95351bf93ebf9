// Package session persists chat history for the AgenticOrchestrator's
// history parameter: one append-only turn log per named conversation.
package session

import (
	"time"

	"github.com/ragdhq/ragd/pkg/version"
)

// Role identifies who spoke a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one exchange recorded in a session's history log.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Citations []string  `json:"citations,omitempty"` // filenames cited by this turn, if assistant
	Timestamp time.Time `json:"timestamp"`
}

// Session is a named, persisted conversation.
type Session struct {
	// Name is the user-provided session identifier.
	Name string `json:"name"`

	// CreatedAt is when the session was first created.
	CreatedAt time.Time `json:"created_at"`

	// LastUsed is when the session last recorded a turn.
	LastUsed time.Time `json:"last_used"`

	// Version is the ragd version that created this session.
	Version string `json:"version"`

	// TurnCount is the number of turns recorded so far.
	TurnCount int `json:"turn_count"`

	// SessionDir is the directory where session data is stored.
	// Computed, not persisted.
	SessionDir string `json:"-"`
}

// NewSession creates a new, empty session.
func NewSession(name, sessionDir string) *Session {
	now := time.Now()
	return &Session{
		Name:       name,
		CreatedAt:  now,
		LastUsed:   now,
		Version:    version.Version,
		SessionDir: sessionDir,
	}
}

// UpdateLastUsed updates the LastUsed timestamp to now.
func (s *Session) UpdateLastUsed() {
	s.LastUsed = time.Now()
}

// RecordTurn increments the session's turn count and bumps LastUsed.
func (s *Session) RecordTurn() {
	s.TurnCount++
	s.UpdateLastUsed()
}

// IsStale returns true if the session hasn't recorded a turn within maxAge.
func (s *Session) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUsed) > maxAge
}

// SessionInfo summarises a session for listing.
type SessionInfo struct {
	Name      string
	LastUsed  time.Time
	TurnCount int
	Size      int64
}

// ToInfo converts a Session to SessionInfo for listing.
func (s *Session) ToInfo(size int64) *SessionInfo {
	return &SessionInfo{
		Name:      s.Name,
		LastUsed:  s.LastUsed,
		TurnCount: s.TurnCount,
		Size:      size,
	}
}

// LastNTurns returns the last n turns of history, or all of them if there
// are fewer than n. Used to build the AgenticOrchestrator's rewrite prompt,
// which needs enough turns to include the one that introduced the topic.
func LastNTurns(turns []ChatTurn, n int) []ChatTurn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// CitedFilenames collects the deduplicated set of filenames cited across
// turns, in first-appearance order.
func CitedFilenames(turns []ChatTurn) []string {
	seen := make(map[string]struct{})
	var filenames []string
	for _, t := range turns {
		for _, c := range t.Citations {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			filenames = append(filenames, c)
		}
	}
	return filenames
}
