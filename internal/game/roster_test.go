package game

import (
	"testing"

	"github.com/lox/cardroom/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seatPlayers(r *Roster, names ...string) []*Player {
	var out []*Player
	for _, n := range names {
		p := NewPlayer(PlayerConfig{Name: n, ConnectionID: "conn-" + n})
		r.Add(p, false)
		out = append(out, p)
	}
	return out
}

func assertSingleHost(t *testing.T, r *Roster) {
	t.Helper()
	hosts := 0
	for _, p := range r.Players() {
		if p.IsHost {
			hosts++
			assert.Equal(t, r.HostID(), p.ID)
		}
	}
	if r.Len() > 0 && r.HostID() != "" {
		assert.Equal(t, 1, hosts)
	} else {
		assert.Zero(t, hosts)
	}
}

func TestRosterTransferHost(t *testing.T) {
	r := NewRoster()
	ps := seatPlayers(r, "a", "b", "c")

	require.NoError(t, r.TransferHost(ps[2].ID))
	assert.Equal(t, ps[2].ID, r.HostID())
	assertSingleHost(t, r)

	err := r.TransferHost(ps[2].ID)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidHostClaim))

	err = r.TransferHost("ghost")
	assert.True(t, errors.IsCode(err, errors.CodePlayerNotFound))

	ps[1].SetStatus(Disconnected)
	err = r.TransferHost(ps[1].ID)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidHostClaim))

	// Without a target the first connected non-host wins.
	require.NoError(t, r.TransferHost(""))
	assert.Equal(t, ps[0].ID, r.HostID())
	assertSingleHost(t, r)
}

func TestRosterHostlessUntilReconnect(t *testing.T) {
	r := NewRoster()
	ps := seatPlayers(r, "a", "b")
	ps[1].SetStatus(Disconnected)
	ps[0].SetStatus(Disconnected)

	assert.Error(t, r.TransferHost(""))
	assert.Empty(t, r.HostID())
	assertSingleHost(t, r)

	ps[1].Rebind("conn-new")
	assert.True(t, r.EnsureHost())
	assert.Equal(t, ps[1].ID, r.HostID())
	assert.False(t, r.EnsureHost(), "connected host is kept")
}

func TestRosterBySession(t *testing.T) {
	r := NewRoster()
	ps := seatPlayers(r, "a", "b")

	p, ok := r.BySession("conn-b")
	require.True(t, ok)
	assert.Same(t, ps[1], p)

	_, ok = r.BySession("")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, r.ConnectionIDs())
}

func TestRosterActiveAndConnected(t *testing.T) {
	r := NewRoster()
	ps := seatPlayers(r, "a", "b", "c")
	ps[1].SetStatus(Disconnected)
	ps[2].Forfeited = true

	assert.Len(t, r.Connected(), 2)
	assert.Equal(t, 2, r.ConnectedCount())
	assert.Len(t, r.Active(), 2)
	assert.Len(t, r.Views(), 3)
}

func TestRankAscending(t *testing.T) {
	r := NewRoster()
	ps := seatPlayers(r, "a", "b", "c", "d")
	ps[0].Score = 30
	ps[1].Score = 5
	ps[2].Score = 1
	ps[2].Forfeited = true
	ps[3].Score = 5

	rankings := RankAscending(r.Players())
	require.Len(t, rankings, 4)

	var order []string
	for i, rk := range rankings {
		assert.Equal(t, i+1, rk.Rank)
		order = append(order, rk.Name)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}
