package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ConsistentClient/ccsswebsockets/internal/presence"
	"github.com/ConsistentClient/ccsswebsockets/internal/utils"
)

func newPolicyHub(store *fakeStore) *Hub {
	return NewHub(store, &fakeSender{}, presence.NewRegistry(), utils.NewLogger("error"))
}

func TestCanPushFirstNotification(t *testing.T) {
	store := newFakeStore()
	store.addRoom("r", 3, 7, 9)
	hub := newPolicyHub(store)

	allowed, err := hub.canPush(context.Background(), 9, 3, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCanPushSilentWins(t *testing.T) {
	store := newFakeStore()
	roomID := store.addRoom("r", 3, 7, 9)
	store.activeParticipant(roomID, 9).silent = 1
	hub := newPolicyHub(store)

	allowed, err := hub.canPush(context.Background(), 9, 3, roomID)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestCanPushCooldownWindow(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"well inside window", time.Minute, false},
		{"just inside window", 5 * time.Minute, false}, // strictly greater than
		{"just outside window", 5*time.Minute + time.Second, true},
		{"long after", time.Hour, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			roomID := store.addRoom("r", 3, 7, 9)
			store.now = func() time.Time { return base }
			require.NoError(t, store.RecordNotification(context.Background(), 9, 3, "New Message", 1))

			hub := newPolicyHub(store)
			hub.now = func() time.Time { return base.Add(tc.elapsed) }

			allowed, err := hub.canPush(context.Background(), 9, 3, roomID)
			require.NoError(t, err)
			require.Equal(t, tc.want, allowed)
		})
	}
}

func TestCanPushSilenceAppliesPerRoom(t *testing.T) {
	store := newFakeStore()
	silentRoom := store.addRoom("silent", 3, 7, 9)
	loudRoom := store.addRoom("loud", 3, 7, 9)
	store.activeParticipant(silentRoom, 9).silent = 1
	hub := newPolicyHub(store)

	allowed, err := hub.canPush(context.Background(), 9, 3, silentRoom)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = hub.canPush(context.Background(), 9, 3, loudRoom)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRecipientsExcludeSender(t *testing.T) {
	store := newFakeStore()
	roomID := store.addRoom("r", 3, 7, 7, 8, 9)
	hub := newPolicyHub(store)

	recipients, member, err := hub.recipients(context.Background(), roomID, 7)
	require.NoError(t, err)
	require.True(t, member)
	require.ElementsMatch(t, []int64{8, 9}, recipients)

	_, member, err = hub.recipients(context.Background(), roomID, 42)
	require.NoError(t, err)
	require.False(t, member)
}

func TestSessionTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		token, err := newSessionToken()
		require.NoError(t, err)
		require.Len(t, token, 43)
		require.False(t, seen[token], "session tokens must not repeat")
		seen[token] = true
	}
}
