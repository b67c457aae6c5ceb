package chat

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	state := &State{Config: Config{
		Enabled:             true,
		MaxMessagesPerUser:  2,
		MaxMessagesPerAgent: 3,
		MaxMessageLength:    280,
	}}
	return NewScheduler(state, zerolog.Nop())
}

func TestRoundID(t *testing.T) {
	assert.Equal(t, "3-10.000", RoundID(3, 10))
	assert.Equal(t, "0-9.500", RoundID(0, 9.5))
	assert.Equal(t, "12-15.125", RoundID(12, 15.125))
}

func TestSubmitBasic(t *testing.T) {
	s := newTestScheduler()

	msg, err := s.Submit("alice", "agent-alpha", "what's your thesis on AAPL?", "1-10.000")
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, SenderUser, msg.SenderType)
	assert.Equal(t, StatusPending, msg.Status)
	assert.Equal(t, "1-10.000", msg.RoundID)
}

func TestSubmitGeneralMessageSkipsLifecycle(t *testing.T) {
	s := newTestScheduler()

	msg, err := s.Submit("alice", "", "good luck everyone", "1-10.000")
	require.NoError(t, err)
	assert.Equal(t, Status(""), msg.Status)

	// A later delivery pass must not pick it up.
	delivered := s.DeliverPending()
	assert.Empty(t, delivered)
}

func TestSubmitValidation(t *testing.T) {
	s := newTestScheduler()

	tests := []struct {
		name    string
		sender  string
		content string
		wantErr string
	}{
		{"blank sender", "   ", "hello", "display name"},
		{"blank content", "alice", "   ", "content is required"},
		{"too long", "alice", strings.Repeat("x", 281), "character limit"},
		{"url", "alice", "check out https://pump.example", "links are not allowed"},
		{"bare domain", "alice", "go to sketchy.xyz now", "links are not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(tt.sender, "", tt.content, "1-10.000")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSubmitDisabled(t *testing.T) {
	s := NewScheduler(&State{Config: Config{Enabled: false}}, zerolog.Nop())

	_, err := s.Submit("alice", "", "hello", "1-10.000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

// Two messages per user per round; the third is rejected.
func TestSubmitPerUserCap(t *testing.T) {
	s := newTestScheduler()

	_, err := s.Submit("alice", "", "first", "2-12.000")
	require.NoError(t, err)
	_, err = s.Submit("alice", "", "second", "2-12.000")
	require.NoError(t, err)

	_, err = s.Submit("alice", "", "third", "2-12.000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message limit")

	// A new round resets the count.
	_, err = s.Submit("alice", "", "fresh round", "3-12.000")
	assert.NoError(t, err)
}

func TestSubmitPerAgentCap(t *testing.T) {
	s := newTestScheduler()

	for i, user := range []string{"alice", "bob", "carol"} {
		_, err := s.Submit(user, "agent-alpha", "question", "2-12.000")
		require.NoError(t, err, "message %d", i)
	}

	_, err := s.Submit("dave", "agent-alpha", "one too many", "2-12.000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message limit")

	// A different agent still has room.
	_, err = s.Submit("dave", "agent-beta", "question", "2-12.000")
	assert.NoError(t, err)
}

func TestUserCapIsCaseInsensitive(t *testing.T) {
	s := newTestScheduler()

	_, err := s.Submit("Alice", "", "first", "2-12.000")
	require.NoError(t, err)
	_, err = s.Submit("alice", "", "second", "2-12.000")
	require.NoError(t, err)

	_, err = s.Submit("ALICE", "", "third", "2-12.000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message limit")
}

func TestDeliveryLifecycle(t *testing.T) {
	s := newTestScheduler()

	_, err := s.Submit("alice", "agent-alpha", "why hold cash?", "1-10.000")
	require.NoError(t, err)
	_, err = s.Submit("bob", "agent-beta", "sell everything", "1-10.000")
	require.NoError(t, err)

	delivered := s.DeliverPending()
	require.Len(t, delivered, 2)
	assert.Len(t, delivered["agent-alpha"], 1)
	assert.Equal(t, StatusDelivered, delivered["agent-alpha"][0].Status)

	s.Resolve("agent-alpha", true)
	s.Resolve("agent-beta", false)

	state := s.StateCopy()
	byAgent := map[string]Status{}
	for _, m := range state.Messages {
		byAgent[m.AgentID] = m.Status
	}
	assert.Equal(t, StatusResponded, byAgent["agent-alpha"])
	assert.Equal(t, StatusIgnored, byAgent["agent-beta"])

	// A second delivery pass finds nothing pending.
	assert.Empty(t, s.DeliverPending())
}

func TestAgentReplyBypassesCaps(t *testing.T) {
	s := newTestScheduler()

	for i := 0; i < 5; i++ {
		msg := s.AppendAgentReply("agent-alpha", "thanks for the question", "1-10.000")
		assert.Equal(t, SenderAgent, msg.SenderType)
		assert.Equal(t, Status(""), msg.Status)
	}
	assert.Len(t, s.StateCopy().Messages, 5)
}

func TestStateCopyIsIndependent(t *testing.T) {
	s := newTestScheduler()
	_, err := s.Submit("alice", "agent-alpha", "hello", "1-10.000")
	require.NoError(t, err)

	snap := s.StateCopy()
	s.DeliverPending()

	assert.Equal(t, StatusPending, snap.Messages[0].Status, "copy must not see later mutations")
}
