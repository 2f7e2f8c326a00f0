package domain

import (
	"time"
)

type BotState string

const (
	StateInitializing BotState = "initializing"
	StateJoining      BotState = "joining"
	StateActive       BotState = "active"
	StateStopping     BotState = "stopping"
	StateStopped      BotState = "stopped"
	StateFailed       BotState = "failed"
)

// Terminal reports whether the bot no longer holds any resources.
func (s BotState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

type BotSession struct {
	ID          string     `json:"botId"`
	MeetingURL  string     `json:"meetingUrl"`
	SessionID   string     `json:"sessionId"`
	DisplayName string     `json:"displayName"`
	State       BotState   `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	JoinedAt    *time.Time `json:"joinedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

func (s *BotSession) CalculateDuration() {
	if s.JoinedAt != nil && s.EndedAt != nil {
		s.Duration = s.EndedAt.Sub(*s.JoinedAt).Round(time.Second).String()
	}
}

// JoinRequest is the input to a join call. DisplayName may be empty.
type JoinRequest struct {
	MeetingURL  string
	SessionID   string
	DisplayName string
}
