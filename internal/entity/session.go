package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is one browser session: the match it plays and its display preferences.
type Session struct {
	ID        string
	Match     *Match
	Ascending bool
	UpdatedAt time.Time
}

func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		Match:     NewMatch(),
		Ascending: true,
		UpdatedAt: time.Now(),
	}
}

// ToggleHistoryOrder flips the order of the move list. Game state is not affected.
func (that *Session) ToggleHistoryOrder() {
	that.Ascending = !that.Ascending
}

func (that *Session) Clone() *Session {
	clone := *that
	clone.Match = that.Match.Clone()

	return &clone
}

type sessionJSON struct {
	ID        string     `json:"id"`
	Match     MatchState `json:"match"`
	Ascending bool       `json:"ascending"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (that *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		ID:        that.ID,
		Match:     that.Match.State(),
		Ascending: that.Ascending,
		UpdatedAt: that.UpdatedAt,
	})
}

func (that *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	match, err := RestoreMatch(raw.Match)
	if err != nil {
		return fmt.Errorf("failed to restore match of session %s: %w", raw.ID, err)
	}

	that.ID = raw.ID
	that.Match = match
	that.Ascending = raw.Ascending
	that.UpdatedAt = raw.UpdatedAt

	return nil
}
