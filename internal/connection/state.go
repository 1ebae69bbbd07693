package connection

import "github.com/clk-66/spectrus-realtime/internal/chat"

// Status names the four connection states.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// State is a connection status plus the data the connected status carries.
// User and ConnectionID are only set when Status is StatusConnected.
type State struct {
	Status       Status     `json:"status"`
	User         *chat.User `json:"user,omitempty"`
	ConnectionID string     `json:"connection_id,omitempty"`
}

func Disconnected() State { return State{Status: StatusDisconnected} }
func Connecting() State { return State{Status: StatusConnecting} }
func Reconnecting() State { return State{Status: StatusReconnecting} }

// Connected returns the connected state for the authenticated session user.
func Connected(user *chat.User, connectionID string) State {
	return State{Status: StatusConnected, User: user, ConnectionID: connectionID}
}

func (s State) IsConnected() bool { return s.Status == StatusConnected }

func (s State) String() string { return string(s.Status) }

// transitions lists the allowed next statuses for each status.
var transitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusConnected, StatusDisconnected},
	StatusConnected:    {StatusDisconnected, StatusReconnecting},
	StatusReconnecting: {StatusConnecting, StatusDisconnected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a move the state graph does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e TransitionError) Error() string {
	return "connection: illegal transition " + string(e.From) + " -> " + string(e.To)
}
