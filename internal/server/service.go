package server

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
	"github.com/lox/cardroom/internal/room"
	"github.com/microcosm-cc/bluemonday"
)

// Limits bound user-supplied text.
type Limits struct {
	MaxNameLength int
	MaxChatLength int
}

// DefaultLimits match the limits clients are told about.
var DefaultLimits = Limits{MaxNameLength: 20, MaxChatLength: 500}

// Service maps inbound events onto room operations. It is transport
// agnostic: the caller supplies the session id and delivers the reply.
type Service struct {
	rooms  *room.Manager
	limits Limits
	policy *bluemonday.Policy
	logger *log.Logger
}

// NewService creates a service over a room manager.
func NewService(rooms *room.Manager, limits Limits, logger *log.Logger) *Service {
	if limits.MaxNameLength <= 0 {
		limits.MaxNameLength = DefaultLimits.MaxNameLength
	}
	if limits.MaxChatLength <= 0 {
		limits.MaxChatLength = DefaultLimits.MaxChatLength
	}
	return &Service{
		rooms:  rooms,
		limits: limits,
		policy: bluemonday.StrictPolicy(),
		logger: logger.WithPrefix("service"),
	}
}

// Handle runs one inbound event for a session. It returns the direct reply,
// if the event has one; everything else reaches clients through room
// broadcasts.
func (s *Service) Handle(sessionID string, msg *protocol.Message) (*protocol.Message, error) {
	s.logger.Debug("Handling event", "event", msg.Type, "session", sessionID)

	switch msg.Type {
	case protocol.TypeRoomCreate:
		return s.createRoom(sessionID, msg)
	case protocol.TypeRoomJoin:
		return s.joinRoom(sessionID, msg)
	case protocol.TypeRoomRejoin:
		return s.rejoinRoom(sessionID, msg)
	case protocol.TypeRoomLeave:
		return nil, s.rooms.LeaveRoom(sessionID)
	case protocol.TypeRoomSettings:
		return nil, s.updateSettings(sessionID, msg)
	case protocol.TypeGameStart:
		return nil, s.inRoom(sessionID, func(r *room.Room) error { return r.StartGame(sessionID) })
	case protocol.TypeGameReady:
		return nil, s.setReady(sessionID, msg)
	case protocol.TypeGameAction:
		return nil, s.act(sessionID, msg)
	case protocol.TypePlayerKick:
		return nil, s.target(sessionID, msg, (*room.Room).Kick)
	case protocol.TypeTransferHost:
		return nil, s.target(sessionID, msg, (*room.Room).TransferHost)
	case protocol.TypeChatMessage:
		return nil, s.chat(sessionID, msg)
	default:
		return nil, errors.Newf(errors.CodeUnknownEvent, "unknown event %q", msg.Type)
	}
}

// Disconnect releases whatever the session held.
func (s *Service) Disconnect(sessionID string) {
	s.rooms.Disconnect(sessionID)
}

func (s *Service) inRoom(sessionID string, fn func(r *room.Room) error) error {
	r, ok := s.rooms.RoomBySession(sessionID)
	if !ok {
		return errors.New(errors.CodeNotInRoom, "not in a room")
	}
	return fn(r)
}

func (s *Service) joined(req *protocol.Message, j room.Joined) (*protocol.Message, error) {
	return protocol.Reply(req, protocol.TypeRoomJoined, protocol.RoomJoinedData{
		RoomCode: j.RoomCode,
		PlayerID: j.PlayerID,
		Token:    j.Token,
		Room:     j.Room,
	})
}

func (s *Service) createRoom(sessionID string, msg *protocol.Message) (*protocol.Message, error) {
	var data protocol.CreateRoomData
	if err := msg.Decode(&data); err != nil {
		return nil, err
	}
	if data.Settings != nil {
		if err := protocol.Validate(data.Settings); err != nil {
			return nil, err
		}
	}
	cfg, err := s.player(data.PlayerName, data.Avatar, sessionID)
	if err != nil {
		return nil, err
	}

	j, err := s.rooms.CreateRoom(sessionID, cfg, data.Settings)
	if err != nil {
		return nil, err
	}
	return s.joined(msg, j)
}

func (s *Service) joinRoom(sessionID string, msg *protocol.Message) (*protocol.Message, error) {
	var data protocol.JoinRoomData
	if err := msg.Decode(&data); err != nil {
		return nil, err
	}
	cfg, err := s.player(data.PlayerName, data.Avatar, sessionID)
	if err != nil {
		return nil, err
	}

	j, err := s.rooms.JoinRoom(sessionID, data.RoomCode, cfg)
	if err != nil {
		return nil, err
	}
	return s.joined(msg, j)
}

func (s *Service) rejoinRoom(sessionID string, msg *protocol.Message) (*protocol.Message, error) {
	var data protocol.RejoinRoomData
	if err := msg.Decode(&data); err != nil {
		return nil, err
	}
	j, err := s.rooms.RejoinRoom(sessionID, data.RoomCode, data.PlayerID, data.Token)
	if err != nil {
		return nil, err
	}
	return s.joined(msg, j)
}

func (s *Service) updateSettings(sessionID string, msg *protocol.Message) error {
	var patch game.SettingsPatch
	if err := msg.Decode(&patch); err != nil {
		return err
	}
	return s.inRoom(sessionID, func(r *room.Room) error { return r.UpdateSettings(sessionID, patch) })
}

func (s *Service) setReady(sessionID string, msg *protocol.Message) error {
	var data protocol.ReadyData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	return s.inRoom(sessionID, func(r *room.Room) error { return r.SetReady(sessionID, *data.Ready) })
}

func (s *Service) act(sessionID string, msg *protocol.Message) error {
	var data protocol.ActionData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	return s.inRoom(sessionID, func(r *room.Room) error {
		return r.Act(sessionID, game.Action{Type: data.Type, Data: data.Data})
	})
}

func (s *Service) target(sessionID string, msg *protocol.Message, op func(*room.Room, string, string) error) error {
	var data protocol.TargetData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	return s.inRoom(sessionID, func(r *room.Room) error { return op(r, sessionID, data.TargetID) })
}

func (s *Service) chat(sessionID string, msg *protocol.Message) error {
	var data protocol.SendChatData
	if err := msg.Decode(&data); err != nil {
		return err
	}
	text, err := s.clean("text", data.Text, s.limits.MaxChatLength)
	if err != nil {
		return err
	}
	return s.inRoom(sessionID, func(r *room.Room) error { return r.Chat(sessionID, text) })
}

func (s *Service) player(name, avatar, sessionID string) (game.PlayerConfig, error) {
	name, err := s.clean("playerName", name, s.limits.MaxNameLength)
	if err != nil {
		return game.PlayerConfig{}, err
	}
	return game.PlayerConfig{
		Name:         name,
		Avatar:       strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(avatar))),
		Guest:        true,
		ConnectionID: sessionID,
	}, nil
}

// clean strips markup and enforces a length of 1..limit characters. The
// result is plain text; clients escape it for display.
func (s *Service) clean(field, text string, limit int) (string, error) {
	text = strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return "", errors.Newf(errors.CodeInvalidPayload, "%s is required", field).WithMetadata("field", field)
	case n > limit:
		return "", errors.Newf(errors.CodeInvalidPayload, "%s must be at most %d characters", field, limit).WithMetadata("field", field)
	}
	return text, nil
}
