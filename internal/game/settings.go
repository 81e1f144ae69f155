package game

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/lox/cardroom/internal/errors"
)

// Defaults and bounds for room settings.
const (
	DefaultMinPlayers       = 2
	DefaultMaxPlayers       = 8
	DefaultTurnTimeout      = 60 * time.Second
	DefaultReconnectTimeout = 2 * time.Minute
	DefaultGameType         = "lowscore"

	MinPlayersFloor   = 2
	MaxPlayersCeiling = 8
	MinTurnTimeout    = 10 * time.Second
	MaxTurnTimeout    = 300 * time.Second
	MaxReconnect      = 30 * time.Minute
)

// Settings configure a room and the game bound to it.
type Settings struct {
	MinPlayers       int
	MaxPlayers       int
	TurnTimeout      time.Duration
	ReconnectTimeout time.Duration
	Private          bool
	GameType         string
	// Extras carries rule-set specific options such as round counts.
	Extras map[string]any
}

// DefaultSettings returns the settings a room gets when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		MinPlayers:       DefaultMinPlayers,
		MaxPlayers:       DefaultMaxPlayers,
		TurnTimeout:      DefaultTurnTimeout,
		ReconnectTimeout: DefaultReconnectTimeout,
		GameType:         DefaultGameType,
		Extras:           map[string]any{},
	}
}

// Validate checks the settings are internally consistent and within bounds.
func (s Settings) Validate() error {
	switch {
	case s.MinPlayers < MinPlayersFloor:
		return errors.Newf(errors.CodeInvalidSettings, "minPlayers must be at least %d", MinPlayersFloor)
	case s.MaxPlayers > MaxPlayersCeiling:
		return errors.Newf(errors.CodeInvalidSettings, "maxPlayers must be at most %d", MaxPlayersCeiling)
	case s.MinPlayers > s.MaxPlayers:
		return errors.New(errors.CodeInvalidSettings, "minPlayers cannot exceed maxPlayers")
	case s.TurnTimeout < MinTurnTimeout || s.TurnTimeout > MaxTurnTimeout:
		return errors.Newf(errors.CodeInvalidSettings, "turnTimeout must be between %s and %s", MinTurnTimeout, MaxTurnTimeout)
	case s.ReconnectTimeout <= 0 || s.ReconnectTimeout > MaxReconnect:
		return errors.Newf(errors.CodeInvalidSettings, "reconnectTimeout must be between 1ms and %s", MaxReconnect)
	case s.GameType == "":
		return errors.New(errors.CodeInvalidSettings, "gameType is required")
	}
	return nil
}

// Clone returns a copy that shares no maps with s.
func (s Settings) Clone() Settings {
	s.Extras = maps.Clone(s.Extras)
	if s.Extras == nil {
		s.Extras = map[string]any{}
	}
	return s
}

// ExtraInt reads an integer option from Extras. JSON numbers decode as
// float64, so both representations are accepted.
func (s Settings) ExtraInt(key string, def int) int {
	switch v := s.Extras[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// SettingsPatch is a partial update. Nil fields are left unchanged.
type SettingsPatch struct {
	MinPlayers         *int           `json:"minPlayers,omitempty" validate:"omitempty,min=2,max=8"`
	MaxPlayers         *int           `json:"maxPlayers,omitempty" validate:"omitempty,min=2,max=8"`
	TurnTimeoutMs      *int64         `json:"turnTimeoutMs,omitempty" validate:"omitempty,min=10000,max=300000"`
	ReconnectTimeoutMs *int64         `json:"reconnectTimeoutMs,omitempty" validate:"omitempty,min=1000,max=1800000"`
	Private            *bool          `json:"isPrivate,omitempty"`
	GameType           *string        `json:"gameType,omitempty" validate:"omitempty,min=1,max=32"`
	Extras             map[string]any `json:"extras,omitempty"`
}

// Merge applies a patch and returns the result. Extras are merged key by key.
func (s Settings) Merge(p SettingsPatch) Settings {
	out := s.Clone()
	if p.MinPlayers != nil {
		out.MinPlayers = *p.MinPlayers
	}
	if p.MaxPlayers != nil {
		out.MaxPlayers = *p.MaxPlayers
	}
	if p.TurnTimeoutMs != nil {
		out.TurnTimeout = time.Duration(*p.TurnTimeoutMs) * time.Millisecond
	}
	if p.ReconnectTimeoutMs != nil {
		out.ReconnectTimeout = time.Duration(*p.ReconnectTimeoutMs) * time.Millisecond
	}
	if p.Private != nil {
		out.Private = *p.Private
	}
	if p.GameType != nil {
		out.GameType = *p.GameType
	}
	maps.Copy(out.Extras, p.Extras)
	return out
}

type settingsJSON struct {
	MinPlayers         int            `json:"minPlayers"`
	MaxPlayers         int            `json:"maxPlayers"`
	TurnTimeoutMs      int64          `json:"turnTimeoutMs"`
	ReconnectTimeoutMs int64          `json:"reconnectTimeoutMs"`
	Private            bool           `json:"isPrivate"`
	GameType           string         `json:"gameType"`
	Extras             map[string]any `json:"extras,omitempty"`
}

func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(settingsJSON{
		MinPlayers:         s.MinPlayers,
		MaxPlayers:         s.MaxPlayers,
		TurnTimeoutMs:      s.TurnTimeout.Milliseconds(),
		ReconnectTimeoutMs: s.ReconnectTimeout.Milliseconds(),
		Private:            s.Private,
		GameType:           s.GameType,
		Extras:             s.Extras,
	})
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var v settingsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Settings{
		MinPlayers:       v.MinPlayers,
		MaxPlayers:       v.MaxPlayers,
		TurnTimeout:      time.Duration(v.TurnTimeoutMs) * time.Millisecond,
		ReconnectTimeout: time.Duration(v.ReconnectTimeoutMs) * time.Millisecond,
		Private:          v.Private,
		GameType:         v.GameType,
		Extras:           v.Extras,
	}
	return nil
}
