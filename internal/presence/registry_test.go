package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	userID     int64
	registered bool
	frames     [][]byte
	full       bool
}

func (s *stubConn) UserID() (int64, bool) { return s.userID, s.registered }

func (s *stubConn) Enqueue(frame []byte) bool {
	if s.full {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func TestAttachDetach(t *testing.T) {
	r := NewRegistry()
	c := &stubConn{}

	r.Attach(c)
	require.Equal(t, 1, r.Len())

	r.Detach(c)
	require.Equal(t, 0, r.Len())

	// Detach is idempotent.
	r.Detach(c)
	require.Equal(t, 0, r.Len())
}

func TestPresenceTracksRegistration(t *testing.T) {
	r := NewRegistry()
	c := &stubConn{userID: 7}

	r.Attach(c)
	require.False(t, r.IsUserOnline(7), "unregistered connections are not presence")

	c.registered = true
	r.Promote(c, 7)
	require.True(t, r.IsUserOnline(7))

	r.Detach(c)
	require.False(t, r.IsUserOnline(7))
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	r := NewRegistry()
	a := &stubConn{userID: 7, registered: true}
	b := &stubConn{userID: 7, registered: true}

	r.Attach(a)
	r.Promote(a, 7)
	r.Attach(b)
	r.Promote(b, 7)
	require.True(t, r.IsUserOnline(7))

	r.Detach(a)
	require.True(t, r.IsUserOnline(7), "one connection remains")

	r.Detach(b)
	require.False(t, r.IsUserOnline(7))
}

func TestFirstConnOf(t *testing.T) {
	r := NewRegistry()

	_, ok := r.FirstConnOf(7)
	require.False(t, ok)

	c := &stubConn{userID: 7, registered: true}
	r.Attach(c)
	r.Promote(c, 7)

	got, ok := r.FirstConnOf(7)
	require.True(t, ok)
	require.Same(t, c, got.(*stubConn))
}

func TestPromoteAfterDetachIsNoop(t *testing.T) {
	r := NewRegistry()
	c := &stubConn{userID: 7, registered: true}

	r.Attach(c)
	r.Detach(c)
	r.Promote(c, 7)
	require.False(t, r.IsUserOnline(7))
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry()
	a := &stubConn{}
	b := &stubConn{}
	r.Attach(a)
	r.Attach(b)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
}
