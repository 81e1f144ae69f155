package room

import (
	"slices"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
)

// turnKey identifies one turn. Timers armed for a key are void once the key
// changes.
type turnKey struct {
	round    int
	turn     int
	playerID string
}

type reconnectWindow struct {
	timer *quartz.Timer
	seq   int
}

// syncTurn announces a new turn and arms its timers, or refreshes the valid
// actions when the turn is unchanged. Timers are cancelled whenever the game
// is not PLAYING.
func (r *Room) syncTurn() {
	g := r.game
	if g == nil || g.Status() != game.StatusPlaying {
		r.stopTurnTimers()
		r.turn = turnKey{}
		r.turnActions = nil
		return
	}

	key := turnKey{round: g.RoundNumber(), turn: g.TurnNumber(), playerID: g.CurrentPlayerID()}
	actions := g.ValidActions(key.playerID)

	if key == r.turn {
		if !slices.Equal(actions, r.turnActions) {
			r.turnActions = actions
			r.broadcast(protocol.TypeTurnActions, protocol.TurnActionsData{PlayerID: key.playerID, ValidActions: actions})
		}
		return
	}

	r.stopTurnTimers()
	r.turn = key
	r.turnActions = actions
	if key.playerID == "" {
		return
	}

	timeout := g.Settings().TurnTimeout
	r.armTurnTimers(key, timeout)
	r.broadcast(protocol.TypeTurnStart, protocol.TurnStartData{
		PlayerID:     key.playerID,
		RoundNumber:  key.round,
		TurnNumber:   key.turn,
		TimeoutMs:    timeout.Milliseconds(),
		ValidActions: actions,
	})
}

func (r *Room) armTurnTimers(key turnKey, timeout time.Duration) {
	r.turnSeq++
	seq := r.turnSeq

	r.turnTimer = r.m.clock.AfterFunc(timeout, func() { r.onTurnTimeout(key, seq) }, "room", "turn")
	if before := r.m.afkWarning; before > 0 && timeout > before {
		r.warnTimer = r.m.clock.AfterFunc(timeout-before, func() { r.onTurnWarning(key, seq) }, "room", "warning")
	}
}

func (r *Room) stopTurnTimers() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	if r.warnTimer != nil {
		r.warnTimer.Stop()
		r.warnTimer = nil
	}
}

func (r *Room) currentTimer(key turnKey, seq int) bool {
	return r.game != nil && r.turn == key && r.turnSeq == seq
}

func (r *Room) onTurnWarning(key turnKey, seq int) {
	r.fire(func() {
		if !r.currentTimer(key, seq) {
			return
		}
		p, ok := r.game.Player(key.playerID)
		if !ok || !p.WarnAFK() {
			return
		}
		r.send(p.ConnectionID, protocol.TypeTurnTimeoutWarning, protocol.TimeoutWarningData{
			PlayerID:         p.ID,
			SecondsRemaining: int(r.m.afkWarning / time.Second),
		})
	})
}

// onTurnTimeout skips the expired turn through the rule set. A player who
// keeps timing out is treated as disconnected.
func (r *Room) onTurnTimeout(key turnKey, seq int) {
	r.fire(func() {
		if !r.currentTimer(key, seq) {
			return
		}
		r.turnTimer = nil

		count, err := r.game.TimeoutTurn(key.playerID, key.turn)
		if err != nil {
			if !errors.IsCode(err, errors.CodeStale) {
				r.logger.Error("Failed to skip timed out turn", "player", key.playerID, "error", err)
			}
			return
		}
		r.logger.Info("Turn timed out", "player", key.playerID, "turn", key.turn, "afk", count)

		if r.m.maxAFK <= 0 || count < r.m.maxAFK || r.game.Status().Over() {
			return
		}
		p, ok := r.game.Player(key.playerID)
		if !ok || !p.Connected() {
			return
		}
		session := p.ConnectionID
		r.m.unindex(session, r.code)
		if err := r.depart(p, ReasonAFK, false); err != nil {
			r.logger.Error("Failed to remove AFK player", "player", p.ID, "error", err)
			return
		}
		r.send(session, protocol.TypePlayerLeft, protocol.PlayerLeftData{PlayerID: p.ID, Name: p.Name, Reason: ReasonAFK})
	})
}

// openReconnect starts the window in which a disconnected player may rejoin.
func (r *Room) openReconnect(p *game.Player) {
	r.stopReconnect(p.ID)
	r.windowSeq++
	seq, id := r.windowSeq, p.ID
	timer := r.m.clock.AfterFunc(r.settings.ReconnectTimeout, func() { r.onReconnectExpired(id, seq) }, "room", "reconnect")
	r.reconnect[id] = reconnectWindow{timer: timer, seq: seq}
}

func (r *Room) stopReconnect(playerID string) {
	if w, ok := r.reconnect[playerID]; ok {
		w.timer.Stop()
		delete(r.reconnect, playerID)
	}
}

// onReconnectExpired forfeits a seat whose owner never came back.
func (r *Room) onReconnectExpired(playerID string, seq int) {
	r.fire(func() {
		w, ok := r.reconnect[playerID]
		if !ok || w.seq != seq {
			return
		}
		delete(r.reconnect, playerID)

		if r.game == nil {
			return
		}
		p, ok := r.game.Player(playerID)
		if !ok || p.Connected() || p.Forfeited {
			return
		}
		if err := r.depart(p, ReasonReconnectTimeout, true); err != nil {
			r.logger.Error("Failed to forfeit seat", "player", playerID, "error", err)
		}
	})
}
