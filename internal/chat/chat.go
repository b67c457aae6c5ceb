package chat

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SenderType distinguishes community users from competing agents.
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderAgent SenderType = "agent"
)

// Status is the delivery lifecycle of an agent-directed user message.
// General messages never enter the lifecycle and keep an empty status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusResponded Status = "responded"
	StatusIgnored   Status = "ignored"
)

// Message is one chat entry, tagged with the trading round active when it
// was submitted.
type Message struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id,omitempty"`
	Sender     string     `json:"sender"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	RoundID    string     `json:"round_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Status     Status     `json:"status,omitempty"`
}

// Config holds the per-competition chat limits.
type Config struct {
	Enabled             bool `json:"enabled"`
	MaxMessagesPerUser  int  `json:"max_messages_per_user"`
	MaxMessagesPerAgent int  `json:"max_messages_per_agent"`
	MaxMessageLength    int  `json:"max_message_length"`
}

// State is the persisted chat record: limits plus an append-only message
// list. Messages are never removed or reordered.
type State struct {
	Config   Config    `json:"config"`
	Messages []Message `json:"messages"`
}

// RoundID formats a trading round identifier from the simulation clock.
func RoundID(day int, intradayHour float64) string {
	return fmt.Sprintf("%d-%.3f", day, intradayHour)
}

// Links and bare domains are rejected outright; the chat feed renders
// user text verbatim.
var urlPattern = regexp.MustCompile(`(?i)(https?://|www\.|\b[a-z0-9-]+\.(com|net|org|io|gg|xyz|app|co)\b)`)

// Scheduler gates community messages into trading rounds. Submissions are
// validated against the round's existing messages; delivery status advances
// only when a trade window processes the round.
type Scheduler struct {
	mu    sync.Mutex
	state *State
	log   zerolog.Logger
}

func NewScheduler(state *State, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		state: state,
		log:   log.With().Str("component", "chat").Logger(),
	}
}

// Submit validates and appends one user message. The returned error text is
// shown to the submitting user as-is.
func (s *Scheduler) Submit(sender, agentID, content, roundID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.state.Config
	if !cfg.Enabled {
		return Message{}, fmt.Errorf("chat is disabled for this competition")
	}

	sender = strings.TrimSpace(sender)
	content = strings.TrimSpace(content)
	if sender == "" {
		return Message{}, fmt.Errorf("a display name is required")
	}
	if content == "" {
		return Message{}, fmt.Errorf("message content is required")
	}
	if cfg.MaxMessageLength > 0 && len(content) > cfg.MaxMessageLength {
		return Message{}, fmt.Errorf("message exceeds the %d character limit", cfg.MaxMessageLength)
	}
	if urlPattern.MatchString(content) {
		return Message{}, fmt.Errorf("links are not allowed in chat messages")
	}

	// Caps are recomputed by scanning the round's messages each time so a
	// restart or replay can never drift a running counter.
	userCount, agentCount := s.roundCounts(roundID, sender, agentID)
	if cfg.MaxMessagesPerUser > 0 && userCount >= cfg.MaxMessagesPerUser {
		return Message{}, fmt.Errorf("message limit reached: %d per user per round", cfg.MaxMessagesPerUser)
	}
	if agentID != "" && cfg.MaxMessagesPerAgent > 0 && agentCount >= cfg.MaxMessagesPerAgent {
		return Message{}, fmt.Errorf("message limit reached: %d per agent per round", cfg.MaxMessagesPerAgent)
	}

	msg := Message{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Sender:     sender,
		SenderType: SenderUser,
		Content:    content,
		RoundID:    roundID,
		CreatedAt:  time.Now().UTC(),
	}
	if agentID != "" {
		msg.Status = StatusPending
	}

	s.state.Messages = append(s.state.Messages, msg)
	s.log.Debug().Str("round", roundID).Str("sender", sender).Str("agent", agentID).Msg("chat message accepted")
	return msg, nil
}

// AppendAgentReply records an agent's outbound message. Agent messages are
// not subject to user validation or caps.
func (s *Scheduler) AppendAgentReply(agentID, content, roundID string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Sender:     agentID,
		SenderType: SenderAgent,
		Content:    content,
		RoundID:    roundID,
		CreatedAt:  time.Now().UTC(),
	}
	s.state.Messages = append(s.state.Messages, msg)
	return msg
}

// DeliverPending marks every pending user message as delivered and returns
// them grouped by target agent. Called once per trade window.
func (s *Scheduler) DeliverPending() map[string][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := make(map[string][]Message)
	for i := range s.state.Messages {
		m := &s.state.Messages[i]
		if m.SenderType == SenderUser && m.AgentID != "" && m.Status == StatusPending {
			m.Status = StatusDelivered
			delivered[m.AgentID] = append(delivered[m.AgentID], *m)
		}
	}
	return delivered
}

// Resolve settles the delivered messages for one agent after its decision
// step ran: responded when the agent produced a reply, ignored otherwise.
func (s *Scheduler) Resolve(agentID string, responded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := StatusIgnored
	if responded {
		status = StatusResponded
	}
	for i := range s.state.Messages {
		m := &s.state.Messages[i]
		if m.AgentID == agentID && m.SenderType == SenderUser && m.Status == StatusDelivered {
			m.Status = status
		}
	}
}

// StateCopy returns a deep copy safe to serialize while submissions
// continue.
func (s *Scheduler) StateCopy() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := State{Config: s.state.Config}
	out.Messages = make([]Message, len(s.state.Messages))
	copy(out.Messages, s.state.Messages)
	return out
}

// roundCounts scans one round's messages for the caller's user count and
// the target agent's directed-message count.
func (s *Scheduler) roundCounts(roundID, sender, agentID string) (userCount, agentCount int) {
	for _, m := range s.state.Messages {
		if m.RoundID != roundID || m.SenderType != SenderUser {
			continue
		}
		if strings.EqualFold(m.Sender, sender) {
			userCount++
		}
		if agentID != "" && m.AgentID == agentID {
			agentCount++
		}
	}
	return userCount, agentCount
}
