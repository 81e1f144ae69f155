package game

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/cardroom/internal/errors"
)

// Config wires a Game to its roster, rules and collaborators.
type Config struct {
	ID       string
	RoomCode string
	Roster   *Roster
	Settings Settings
	Rules    Rules
	Rand     *rand.Rand
	Clock    quartz.Clock
	Events   EventBus
	Logger   *log.Logger
}

// Result summarises a finished game.
type Result struct {
	GameID    string         `json:"gameId"`
	RoomCode  string         `json:"roomCode"`
	GameType  string         `json:"gameType"`
	WinnerID  string         `json:"winnerId,omitempty"`
	Rankings  []Ranking      `json:"rankings"`
	Duration  time.Duration  `json:"-"`
	Rounds    int            `json:"rounds"`
	EndReason EndReason      `json:"endReason"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Actions   []ActionRecord `json:"-"`
}

// DurationMs is the game length in milliseconds.
func (r Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// State is the client snapshot of a game.
type State struct {
	ID              string         `json:"id"`
	RoomCode        string         `json:"roomCode"`
	GameType        string         `json:"gameType"`
	Status          Status         `json:"status"`
	Phase           Phase          `json:"phase"`
	HostID          string         `json:"hostId"`
	CurrentPlayerID string         `json:"currentPlayerId"`
	Players         []PlayerView   `json:"players"`
	Settings        Settings       `json:"settings"`
	RoundNumber     int            `json:"roundNumber"`
	TurnNumber      int            `json:"turnNumber"`
	CreatedAt       time.Time      `json:"createdAt"`
	StartedAt       *time.Time     `json:"startedAt"`
	EndedAt         *time.Time     `json:"endedAt"`
	GameData        map[string]any `json:"gameData"`
}

// Game is the turn-based state machine binding a roster to a rule set.
type Game struct {
	id       string
	roomCode string
	status   Status
	phase    Phase
	roster   *Roster
	settings Settings
	rules    Rules
	rng      *rand.Rand
	clock    quartz.Clock
	events   EventBus
	logger   *log.Logger

	currentPlayerID string
	roundNumber     int
	turnNumber      int
	history         []ActionRecord

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	result    *Result

	// Events raised while a rule set is applying an action are held back so
	// the action itself is announced first.
	buffering bool
	pending   []Event
}

// New creates a game in LOBBY.
func New(cfg Config) *Game {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Roster == nil {
		cfg.Roster = NewRoster()
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Events == nil {
		cfg.Events = NewEventBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Game{
		id:        cfg.ID,
		roomCode:  cfg.RoomCode,
		status:    StatusLobby,
		phase:     PhaseSetup,
		roster:    cfg.Roster,
		settings:  cfg.Settings.Clone(),
		rules:     cfg.Rules,
		rng:       cfg.Rand,
		clock:     cfg.Clock,
		events:    cfg.Events,
		logger:    cfg.Logger.WithPrefix("game").With("id", cfg.ID),
		createdAt: cfg.Clock.Now(),
	}
}

func (g *Game) ID() string { return g.id }
func (g *Game) RoomCode() string { return g.roomCode }
func (g *Game) GameType() string { return g.settings.GameType }
func (g *Game) Status() Status { return g.status }
func (g *Game) Phase() Phase { return g.phase }
func (g *Game) Settings() Settings { return g.settings.Clone() }
func (g *Game) Roster() *Roster { return g.roster }
func (g *Game) HostID() string { return g.roster.HostID() }
func (g *Game) RoundNumber() int { return g.roundNumber }
func (g *Game) TurnNumber() int { return g.turnNumber }
func (g *Game) Rand() *rand.Rand { return g.rng }
func (g *Game) Now() time.Time { return g.clock.Now() }
func (g *Game) CurrentPlayerID() string { return g.currentPlayerID }

// SetPhase is used by rule sets to expose their sub-stage.
func (g *Game) SetPhase(p Phase) {
	g.phase = p
}

// Players returns every seated player in join order.
func (g *Game) Players() []*Player {
	return g.roster.Players()
}

// ConnectedPlayers returns connected players in join order.
func (g *Game) ConnectedPlayers() []*Player {
	return g.roster.Connected()
}

// ActivePlayers returns every player still holding a seat in the game.
func (g *Game) ActivePlayers() []*Player {
	return g.roster.Active()
}

// Player returns a player by id.
func (g *Game) Player(id string) (*Player, bool) {
	return g.roster.Get(id)
}

// PlayerBySession returns the player bound to a connection.
func (g *Game) PlayerBySession(connectionID string) (*Player, bool) {
	return g.roster.BySession(connectionID)
}

// CurrentPlayer returns the player whose turn it is.
func (g *Game) CurrentPlayer() (*Player, bool) {
	if g.currentPlayerID == "" {
		return nil, false
	}
	return g.roster.Get(g.currentPlayerID)
}

// IsFull reports whether the roster has reached maxPlayers.
func (g *Game) IsFull() bool {
	return g.roster.Len() >= g.settings.MaxPlayers
}

// History returns a copy of the action log.
func (g *Game) History() []ActionRecord {
	return slices.Clone(g.history)
}

// Result returns the result once the game is over.
func (g *Game) Result() (Result, bool) {
	if g.result == nil {
		return Result{}, false
	}
	return *g.result, true
}

// AddPlayer seats a player. It is only accepted in LOBBY.
func (g *Game) AddPlayer(p *Player, asHost bool) error {
	if g.status != StatusLobby {
		return errors.New(errors.CodeGameInProgress, "game already in progress")
	}
	if g.IsFull() {
		return errors.New(errors.CodeRoomFull, "room is full")
	}
	g.roster.Add(p, asHost)
	return nil
}

// RemovePlayer handles a departure. In LOBBY the seat is deleted; otherwise
// the player is marked disconnected and keeps seat, hand and turn order. If
// it was their turn, the turn is resolved with the rule set's skip policy.
func (g *Game) RemovePlayer(id string) error {
	p, ok := g.roster.Get(id)
	if !ok {
		return errors.New(errors.CodePlayerNotFound, "player not found")
	}

	if g.status == StatusLobby {
		g.roster.Remove(id)
		return nil
	}

	p.SetStatus(Disconnected)
	if p.IsHost {
		_ = g.roster.TransferHost("")
	}
	return g.afterDeparture(p)
}

// Forfeit gives up a seat for the rest of the game. The player keeps their
// place in the roster for the final rankings but never gets another turn.
func (g *Game) Forfeit(id string) error {
	p, ok := g.roster.Get(id)
	if !ok {
		return errors.New(errors.CodePlayerNotFound, "player not found")
	}
	if g.status == StatusLobby {
		g.roster.Remove(id)
		return nil
	}

	p.Forfeited = true
	p.SetStatus(Disconnected)
	if p.IsHost {
		_ = g.roster.TransferHost("")
	}
	return g.afterDeparture(p)
}

func (g *Game) afterDeparture(p *Player) error {
	if g.status != StatusPlaying {
		return nil
	}
	if g.currentPlayerID == p.ID {
		if err := g.SkipTurn(TurnEndDisconnect); err != nil {
			return err
		}
	}
	if g.status == StatusPlaying && g.roster.ConnectedCount() == 0 {
		g.Pause("no players connected")
	}
	return nil
}

// Rejoin binds a new connection to a seated, non-forfeited player.
func (g *Game) Rejoin(id, connectionID string) error {
	p, ok := g.roster.Get(id)
	if !ok {
		return errors.New(errors.CodePlayerNotFound, "player not found")
	}
	if p.Forfeited {
		return errors.New(errors.CodeInvalidRejoin, "seat was forfeited")
	}

	p.Rebind(connectionID)
	g.roster.EnsureHost()

	if g.status == StatusPaused {
		g.Resume()
	}
	if g.status == StatusPlaying && g.currentPlayerID == "" {
		g.AdvanceTurn()
	}
	return nil
}

// TransferHost moves the host role, see Roster.TransferHost.
func (g *Game) TransferHost(target string) error {
	return g.roster.TransferHost(target)
}

// UpdateSettings replaces settings. Only accepted in LOBBY.
func (g *Game) UpdateSettings(s Settings) error {
	if g.status != StatusLobby {
		return errors.New(errors.CodeGameInProgress, "settings can only change in the lobby")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	g.settings = s.Clone()
	return nil
}

// CheckStart explains why the game cannot start, or returns nil.
func (g *Game) CheckStart() error {
	if g.status != StatusLobby {
		return errors.New(errors.CodeGameInProgress, "game already started")
	}
	connected := g.roster.Connected()
	if len(connected) < g.settings.MinPlayers {
		return errors.Newf(errors.CodeNotEnoughPlayers, "need at least %d players", g.settings.MinPlayers)
	}
	for _, p := range connected {
		if !p.IsReady && !p.IsHost {
			return errors.Newf(errors.CodeNotReady, "%s is not ready", p.Name)
		}
	}
	return nil
}

// CanStart reports whether Start would succeed.
func (g *Game) CanStart() bool {
	return g.CheckStart() == nil
}

// Start deals the first round and hands the first turn to a random connected
// player.
func (g *Game) Start() error {
	if err := g.CheckStart(); err != nil {
		return err
	}

	g.status = StatusStarting
	g.startedAt = g.clock.Now()
	g.roundNumber = 1
	g.turnNumber = 0

	players := g.roster.Players()
	ready := make([]bool, len(players))
	for i, p := range players {
		ready[i] = p.IsReady
		p.ResetForNewGame()
	}

	g.phase = PhaseDeal
	if err := g.rules.Setup(g); err != nil {
		for i, p := range players {
			p.Hand = nil
			p.IsReady = ready[i]
		}
		g.status = StatusLobby
		g.phase = PhaseSetup
		g.roundNumber = 0
		g.startedAt = time.Time{}
		return errors.Wrap(errors.CodeActionFailed, "game setup failed", err)
	}

	g.status = StatusPlaying
	g.phase = PhasePlay
	g.selectFirstPlayer()

	g.logger.Info("Game started", "players", g.roster.Len(), "first", g.currentPlayerID)
	g.emit(GameStartedEvent{GameID: g.id, FirstPlayerID: g.currentPlayerID, timestamp: g.clock.Now()})
	return nil
}

func (g *Game) selectFirstPlayer() {
	connected := g.turnCandidates()
	if len(connected) == 0 {
		return
	}
	first := connected[g.rng.IntN(len(connected))]
	g.currentPlayerID = first.ID
	first.StartTurn(g.clock.Now())
}

// turnCandidates returns connected, non-forfeited players sorted by turn
// order.
func (g *Game) turnCandidates() []*Player {
	var out []*Player
	for _, p := range g.roster.Connected() {
		if !p.Forfeited {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *Player) int { return a.TurnOrder - b.TurnOrder })
	return out
}

// AdvanceTurn hands the turn to the next connected player by turn order,
// wrapping around. Disconnected players are never candidates, so the
// rotation stays correct if the roster changed mid-turn. With nobody
// connected the game is left without a current player.
func (g *Game) AdvanceTurn() (*Player, bool) {
	candidates := g.turnCandidates()
	g.turnNumber++
	if len(candidates) == 0 {
		g.currentPlayerID = ""
		return nil, false
	}

	order := -1
	if cur, ok := g.CurrentPlayer(); ok {
		order = cur.TurnOrder
	}

	next := candidates[0]
	for _, p := range candidates {
		if p.TurnOrder > order {
			next = p
			break
		}
	}

	g.currentPlayerID = next.ID
	next.StartTurn(g.clock.Now())
	return next, true
}

// EndTurn finishes the current player's turn and advances. Rule sets call it
// once an action completes a turn.
func (g *Game) EndTurn(reason TurnEndReason) {
	if cur, ok := g.CurrentPlayer(); ok {
		cur.EndTurn(g.clock.Now())
		g.emit(TurnEndedEvent{PlayerID: cur.ID, TurnNumber: g.turnNumber, Reason: reason, timestamp: g.clock.Now()})
	}
	g.AdvanceTurn()
}

// ScoreRound runs the rule set's scoring for the round just played and
// announces the result.
func (g *Game) ScoreRound() {
	g.phase = PhaseScoring
	g.rules.CalculateScores(g)

	ev := RoundEndedEvent{
		RoundNumber: g.roundNumber,
		Scores:      make(map[string]RoundScore),
		Totals:      make(map[string]int),
		timestamp:   g.clock.Now(),
	}
	for _, p := range g.roster.Players() {
		if n := len(p.RoundScores); n > 0 {
			ev.Scores[p.ID] = p.RoundScores[n-1]
		}
		ev.Totals[p.ID] = p.Score
	}
	g.phase = PhaseEndRound
	g.emit(ev)
}

// StartNextRound resets hands and deals again. The current player keeps the
// turn and their turn clock restarts.
func (g *Game) StartNextRound() error {
	if g.status != StatusPlaying {
		return errors.New(errors.CodeInvalidState, "game is not running")
	}
	g.roundNumber++
	// Forfeited seats are cleared too: the deal reclaims every card.
	for _, p := range g.roster.Players() {
		p.ResetForNewRound()
	}

	g.phase = PhaseDeal
	if err := g.rules.Setup(g); err != nil {
		return fmt.Errorf("round %d setup: %w", g.roundNumber, err)
	}
	g.phase = PhasePlay

	if cur, ok := g.CurrentPlayer(); ok {
		cur.StartTurn(g.clock.Now())
	} else {
		g.AdvanceTurn()
	}
	return nil
}

// End finishes the game. It is a no-op once the game is already over.
func (g *Game) End(reason EndReason) {
	if g.status.Over() {
		return
	}

	if cur, ok := g.CurrentPlayer(); ok && cur.InTurn() {
		cur.EndTurn(g.clock.Now())
	}

	if reason == EndCancelled {
		g.status = StatusCancelled
	} else {
		g.status = StatusFinished
	}
	g.phase = PhaseEndGame
	g.endedAt = g.clock.Now()
	g.currentPlayerID = ""

	rankings := g.rules.OnGameEnd(g, reason)
	result := Result{
		GameID:    g.id,
		RoomCode:  g.roomCode,
		GameType:  g.settings.GameType,
		Rankings:  rankings,
		Rounds:    g.roundNumber,
		EndReason: reason,
		StartedAt: g.startedAt,
		EndedAt:   g.endedAt,
		Actions:   slices.Clone(g.history),
	}
	if !g.startedAt.IsZero() {
		result.Duration = g.endedAt.Sub(g.startedAt)
	}
	if reason != EndCancelled && len(rankings) > 0 {
		if p, ok := g.roster.Get(rankings[0].PlayerID); ok && !p.Forfeited {
			result.WinnerID = p.ID
		}
	}
	g.result = &result

	g.logger.Info("Game ended", "reason", reason, "rounds", g.roundNumber, "winner", result.WinnerID)
	g.emit(GameEndedEvent{Result: result, timestamp: g.endedAt})
}

// Pause suspends play. Actions are rejected until Resume.
func (g *Game) Pause(reason string) {
	if g.status != StatusPlaying {
		return
	}
	g.status = StatusPaused
	g.emit(GamePausedEvent{Paused: true, Reason: reason, timestamp: g.clock.Now()})
}

// Resume continues a paused game.
func (g *Game) Resume() {
	if g.status != StatusPaused {
		return
	}
	g.status = StatusPlaying
	g.emit(GamePausedEvent{Paused: false, timestamp: g.clock.Now()})
}

// ValidActions lists what the player may do now. It is empty unless the
// game is PLAYING and it is that player's turn.
func (g *Game) ValidActions(playerID string) []string {
	if g.status != StatusPlaying || playerID == "" || g.currentPlayerID != playerID {
		return []string{}
	}
	p, ok := g.roster.Get(playerID)
	if !ok {
		return []string{}
	}
	actions := g.rules.ValidActions(g, p)
	if actions == nil {
		return []string{}
	}
	return actions
}

// Apply validates and applies one action for a player.
func (g *Game) Apply(playerID string, a Action) (ActionRecord, error) {
	switch {
	case g.status.Over():
		return ActionRecord{}, errors.New(errors.CodeStale, "game has ended")
	case g.status == StatusPaused:
		return ActionRecord{}, errors.New(errors.CodeInvalidState, "game is paused")
	case g.status != StatusPlaying:
		return ActionRecord{}, errors.New(errors.CodeGameNotStarted, "game is not running")
	}

	p, ok := g.roster.Get(playerID)
	if !ok {
		return ActionRecord{}, errors.New(errors.CodePlayerNotFound, "player not found")
	}
	if g.currentPlayerID != playerID {
		return ActionRecord{}, errors.New(errors.CodeNotYourTurn, "not your turn")
	}
	if !slices.Contains(g.ValidActions(playerID), a.Type) {
		return ActionRecord{}, errors.Newf(errors.CodeInvalidAction, "action %q is not valid now", a.Type)
	}

	rec := g.newRecord(p.ID, a.Type, a.Data)
	err := g.withBufferedEvents(rec, func() error {
		return g.rules.HandleAction(g, p, a)
	})
	if err != nil {
		if errors.GetCode(err) == errors.CodeUnknown {
			err = errors.Wrap(errors.CodeInvalidAction, "action rejected", err)
		}
		return ActionRecord{}, err
	}
	return rec, nil
}

// SkipTurn resolves the current player's turn with the rule set's skip
// policy.
func (g *Game) SkipTurn(reason TurnEndReason) error {
	if g.status != StatusPlaying {
		return errors.New(errors.CodeStale, "game is not running")
	}
	cur, ok := g.CurrentPlayer()
	if !ok {
		return nil
	}

	data, _ := json.Marshal(map[string]string{"reason": string(reason)})
	rec := g.newRecord(cur.ID, "skip_turn", data)
	return g.withBufferedEvents(rec, func() error {
		return g.rules.SkipTurn(g, cur, reason)
	})
}

// TimeoutTurn applies the AFK policy for an expired turn timer. The timer
// identifies the turn it was armed for; a timer for any other turn is stale.
// It returns the player's AFK count.
func (g *Game) TimeoutTurn(playerID string, turnNumber int) (int, error) {
	if g.status != StatusPlaying || g.currentPlayerID != playerID || g.turnNumber != turnNumber {
		return 0, errors.New(errors.CodeStale, "turn already over")
	}
	p, _ := g.roster.Get(playerID)
	count := p.MarkAFK()
	if err := g.SkipTurn(TurnEndTimeout); err != nil {
		return count, err
	}
	return count, nil
}

func (g *Game) newRecord(playerID, actionType string, data json.RawMessage) ActionRecord {
	return ActionRecord{
		ID:        uuid.NewString(),
		GameID:    g.id,
		PlayerID:  playerID,
		Type:      actionType,
		Data:      data,
		Round:     g.roundNumber,
		Turn:      g.turnNumber,
		Timestamp: g.clock.Now(),
	}
}

// withBufferedEvents runs fn with event publication deferred. On success the
// record is appended to the history and announced before anything fn raised.
func (g *Game) withBufferedEvents(rec ActionRecord, fn func() error) error {
	g.buffering = true
	defer func() {
		g.buffering = false
		g.pending = nil
	}()

	if err := fn(); err != nil {
		return err
	}

	g.history = append(g.history, rec)
	if g.result != nil {
		// The game ended during this action; the result must include it.
		g.result.Actions = slices.Clone(g.history)
	}

	g.events.Publish(ActionAppliedEvent{Record: rec, timestamp: rec.Timestamp})
	for _, ev := range g.pending {
		if ended, ok := ev.(GameEndedEvent); ok && g.result != nil {
			ended.Result = *g.result
			ev = ended
		}
		g.events.Publish(ev)
	}
	return nil
}

func (g *Game) emit(ev Event) {
	if g.buffering {
		g.pending = append(g.pending, ev)
		return
	}
	g.events.Publish(ev)
}

// Snapshot returns the client view of the game.
func (g *Game) Snapshot() State {
	s := State{
		ID:              g.id,
		RoomCode:        g.roomCode,
		GameType:        g.settings.GameType,
		Status:          g.status,
		Phase:           g.phase,
		HostID:          g.roster.HostID(),
		CurrentPlayerID: g.currentPlayerID,
		Players:         g.roster.Views(),
		Settings:        g.settings.Clone(),
		RoundNumber:     g.roundNumber,
		TurnNumber:      g.turnNumber,
		CreatedAt:       g.createdAt,
		GameData:        map[string]any{},
	}
	if !g.startedAt.IsZero() {
		t := g.startedAt
		s.StartedAt = &t
	}
	if !g.endedAt.IsZero() {
		t := g.endedAt
		s.EndedAt = &t
	}
	if g.rules != nil && g.status != StatusLobby {
		s.GameData = g.rules.Snapshot(g)
	}
	return s
}
