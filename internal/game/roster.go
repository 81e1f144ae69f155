package game

import (
	"slices"

	"github.com/lox/cardroom/internal/errors"
)

// Roster is the set of seated players in join order plus the host
// designation. A room and the game bound to it share one Roster.
type Roster struct {
	players map[string]*Player
	order   []string
	hostID  string
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{players: make(map[string]*Player)}
}

// Add seats a player at the end of the turn order. The first player, or one
// added with asHost, becomes host.
func (r *Roster) Add(p *Player, asHost bool) {
	p.TurnOrder = len(r.order)
	p.IsHost = false
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)

	if len(r.order) == 1 || asHost || r.hostID == "" {
		r.setHost(p)
	}
}

// Remove deletes a player outright and renumbers turn order densely. If the
// player was host, host passes to the first connected remaining player.
func (r *Roster) Remove(id string) (*Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return nil, false
	}
	delete(r.players, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	for i, pid := range r.order {
		r.players[pid].TurnOrder = i
	}

	if r.hostID == id {
		p.IsHost = false
		r.hostID = ""
		r.TransferHost("")
	}
	return p, true
}

// TransferHost moves the host role. With an explicit target the target must
// be a different, connected, seated player. Without one the role goes to the
// first connected non-host in join order; if nobody is connected the roster
// is left host-less until EnsureHost finds someone.
func (r *Roster) TransferHost(target string) error {
	if target != "" {
		p, ok := r.players[target]
		if !ok {
			return errors.New(errors.CodePlayerNotFound, "player not found")
		}
		if target == r.hostID {
			return errors.New(errors.CodeInvalidHostClaim, "player is already host")
		}
		if !p.Connected() || p.Forfeited {
			return errors.New(errors.CodeInvalidHostClaim, "new host must be connected")
		}
		r.setHost(p)
		return nil
	}

	for _, id := range r.order {
		p := r.players[id]
		if id != r.hostID && p.Connected() && !p.Forfeited {
			r.setHost(p)
			return nil
		}
	}

	if host, ok := r.players[r.hostID]; ok && !host.Connected() {
		host.IsHost = false
		r.hostID = ""
	}
	return errors.New(errors.CodeInvalidHostClaim, "no connected player can take host")
}

// EnsureHost assigns a host if the roster is host-less or the host is no
// longer connected. It reports whether the host changed.
func (r *Roster) EnsureHost() bool {
	if host, ok := r.players[r.hostID]; ok && host.Connected() {
		return false
	}
	return r.TransferHost("") == nil
}

func (r *Roster) setHost(p *Player) {
	if old, ok := r.players[r.hostID]; ok {
		old.IsHost = false
	}
	p.IsHost = true
	r.hostID = p.ID
}

// Get returns a player by id.
func (r *Roster) Get(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// BySession returns the player bound to a connection id.
func (r *Roster) BySession(connectionID string) (*Player, bool) {
	if connectionID == "" {
		return nil, false
	}
	for _, id := range r.order {
		if p := r.players[id]; p.ConnectionID == connectionID {
			return p, true
		}
	}
	return nil, false
}

// Players returns every seated player in join order.
func (r *Roster) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// Connected returns connected players in join order.
func (r *Roster) Connected() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Connected() {
			out = append(out, p)
		}
	}
	return out
}

// Active returns players who still hold a live seat: not forfeited, whether
// or not they are currently connected.
func (r *Roster) Active() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; !p.Forfeited {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of seated players.
func (r *Roster) Len() int {
	return len(r.order)
}

// ConnectedCount returns the number of connected players.
func (r *Roster) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected() {
			n++
		}
	}
	return n
}

// HostID returns the host's id, or "" if the roster is host-less.
func (r *Roster) HostID() string {
	return r.hostID
}

// Host returns the host player.
func (r *Roster) Host() (*Player, bool) {
	return r.Get(r.hostID)
}

// ConnectionIDs returns the connection ids of every seated player that has one.
func (r *Roster) ConnectionIDs() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if c := r.players[id].ConnectionID; c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Views returns client views of every player in join order.
func (r *Roster) Views() []PlayerView {
	out := make([]PlayerView, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id].View())
	}
	return out
}
