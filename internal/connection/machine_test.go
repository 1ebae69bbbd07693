package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

type fakeUsers struct {
	user         *chat.User
	connectionID string
	calls        int
}

func (f *fakeUsers) SetCurrentUser(user *chat.User, connectionID string) {
	f.user = user
	f.connectionID = connectionID
	f.calls++
}

type fakeRecoverer struct {
	calls int
	// during, when set, runs inside Recover.
	during func()
}

func (f *fakeRecoverer) Recover(context.Context) {
	f.calls++
	if f.during != nil {
		f.during()
	}
}

type fakeGate struct{ releases int }

func (f *fakeGate) Release() { f.releases++ }

func newTestMachine() (*Machine, *fakeUsers, *fakeRecoverer, *fakeGate) {
	users, rec, gate := &fakeUsers{}, &fakeRecoverer{}, &fakeGate{}
	return NewMachine(users, rec, gate, nil), users, rec, gate
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting}
	allowed := map[[2]Status]bool{
		{StatusDisconnected, StatusConnecting}:   true,
		{StatusConnecting, StatusConnected}:      true,
		{StatusConnecting, StatusDisconnected}:   true,
		{StatusConnected, StatusDisconnected}:    true,
		{StatusConnected, StatusReconnecting}:    true,
		{StatusReconnecting, StatusConnecting}:   true,
		{StatusReconnecting, StatusDisconnected}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, CanTransition(from, to), allowed[[2]Status{from, to}])
		}
	}
}

func TestMachineStartsDisconnected(t *testing.T) {
	m, _, _, _ := newTestMachine()
	assert.Equal(t, m.State().Status, StatusDisconnected)
	assert.Equal(t, m.RecoveryNeeded(), false)
}

func TestMachineConnectSetsUser(t *testing.T) {
	m, users, rec, gate := newTestMachine()
	ctx := context.Background()
	alice := &chat.User{ID: "alice", TotalUnreadCount: 3}

	assert.Equal(t, m.Transition(ctx, Connecting()), nil)
	assert.Equal(t, m.Transition(ctx, Connected(alice, "c1")), nil)

	assert.Equal(t, m.State().Status, StatusConnected)
	assert.Equal(t, m.State().ConnectionID, "c1")
	assert.Equal(t, users.calls, 1)
	assert.Equal(t, users.user.ID, "alice")
	assert.Equal(t, users.connectionID, "c1")
	// A first connection has nothing to recover.
	assert.Equal(t, rec.calls, 0)
	assert.Equal(t, gate.releases, 0)
}

func TestMachineRecoversAfterReconnect(t *testing.T) {
	m, users, rec, _ := newTestMachine()
	ctx := context.Background()
	alice := &chat.User{ID: "alice"}

	steps := []State{Connecting(), Connected(alice, "c1"), Reconnecting()}
	for _, s := range steps {
		assert.Equal(t, m.Transition(ctx, s), nil)
	}
	assert.Equal(t, m.RecoveryNeeded(), true)
	assert.Equal(t, m.State().User == nil, true)

	// Failed attempts keep the flag until a connection succeeds.
	assert.Equal(t, m.Transition(ctx, Connecting()), nil)
	assert.Equal(t, m.Transition(ctx, Disconnected()), nil)
	assert.Equal(t, m.RecoveryNeeded(), true)
	assert.Equal(t, rec.calls, 0)

	assert.Equal(t, m.Transition(ctx, Connecting()), nil)
	assert.Equal(t, m.Transition(ctx, Connected(alice, "c2")), nil)
	assert.Equal(t, rec.calls, 1)
	assert.Equal(t, m.RecoveryNeeded(), false)
	assert.Equal(t, users.connectionID, "c2")

	// Recovery runs once per reconnection.
	assert.Equal(t, m.Transition(ctx, Disconnected()), nil)
	assert.Equal(t, m.Transition(ctx, Connecting()), nil)
	assert.Equal(t, m.Transition(ctx, Connected(alice, "c3")), nil)
	assert.Equal(t, rec.calls, 1)
}

func TestMachineRejectsIllegalTransition(t *testing.T) {
	m, users, _, _ := newTestMachine()

	err := m.Transition(context.Background(), Connected(&chat.User{ID: "alice"}, "c1"))
	var terr TransitionError
	assert.Equal(t, errors.As(err, &terr), true)
	assert.Equal(t, terr.From, StatusDisconnected)
	assert.Equal(t, terr.To, StatusConnected)

	assert.Equal(t, m.State().Status, StatusDisconnected)
	assert.Equal(t, users.calls, 0)

	err = m.Transition(context.Background(), Disconnected())
	assert.NotEqual(t, err, nil)
}

func TestMachineReleasesGateAfterRefresh(t *testing.T) {
	m, _, _, gate := newTestMachine()
	ctx := context.Background()

	m.MarkRefreshPending()
	assert.Equal(t, m.Transition(ctx, Connecting()), nil)
	assert.Equal(t, gate.releases, 0)
	assert.Equal(t, m.Transition(ctx, Connected(&chat.User{ID: "alice"}, "c1")), nil)
	assert.Equal(t, gate.releases, 1)

	assert.Equal(t, m.Transition(ctx, Disconnected()), nil)
	assert.Equal(t, m.Transition(ctx, Connecting()), nil)
	assert.Equal(t, m.Transition(ctx, Connected(&chat.User{ID: "alice"}, "c2")), nil)
	assert.Equal(t, gate.releases, 1)
}

func TestMachineOnChange(t *testing.T) {
	m, _, _, _ := newTestMachine()
	var seen [][2]Status
	m.OnChange(func(from, to State) {
		seen = append(seen, [2]Status{from.Status, to.Status})
	})

	ctx := context.Background()
	_ = m.Transition(ctx, Connecting())
	_ = m.Transition(ctx, Reconnecting())
	_ = m.Transition(ctx, Connected(&chat.User{ID: "a"}, ""))

	assert.Equal(t, seen, [][2]Status{
		{StatusDisconnected, StatusConnecting},
		{StatusConnecting, StatusConnected},
	})
}

func TestNonConnectedStatesDropUser(t *testing.T) {
	m, _, _, _ := newTestMachine()
	err := m.Transition(context.Background(), State{Status: StatusConnecting, User: &chat.User{ID: "x"}, ConnectionID: "c"})
	assert.Equal(t, err, nil)
	assert.Equal(t, m.State().User == nil, true)
	assert.Equal(t, m.State().ConnectionID, "")
}

func TestRecoveryFlagClearedAfterBatchesIssued(t *testing.T) {
	m, _, rec, _ := newTestMachine()
	ctx := context.Background()
	var flagDuringRecover bool
	rec.during = func() { flagDuringRecover = m.RecoveryNeeded() }

	_ = m.Transition(ctx, Connecting())
	_ = m.Transition(ctx, Connected(&chat.User{ID: "alice"}, "c1"))
	_ = m.Transition(ctx, Reconnecting())
	assert.Equal(t, m.RecoveryNeeded(), true)
	_ = m.Transition(ctx, Connecting())
	assert.Equal(t, m.Transition(ctx, Connected(&chat.User{ID: "alice"}, "c2")), nil)

	assert.Equal(t, rec.calls, 1)
	assert.Equal(t, flagDuringRecover, true)
	assert.Equal(t, m.RecoveryNeeded(), false)
}
