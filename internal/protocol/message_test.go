package protocol

import (
	"encoding/json"
	"testing"

	"github.com/lox/cardroom/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"event":"room:join","data":{"roomCode":"abc234","playerName":"ann"},"requestId":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeRoomJoin, msg.Type)
	assert.True(t, msg.Type.Inbound())

	var data JoinRoomData
	require.NoError(t, msg.Decode(&data))
	assert.Equal(t, "abc234", data.RoomCode)
	assert.Equal(t, "ann", data.PlayerName)

	reply, err := Reply(msg, TypeRoomJoined, RoomJoinedData{RoomCode: "ABC234"})
	require.NoError(t, err)
	assert.Equal(t, "r1", reply.RequestID)
	assert.False(t, reply.Type.Inbound())
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := ParseMessage([]byte(`not json`))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidMessage))

	_, err = ParseMessage([]byte(`{"data":{}}`))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidMessage))
}

func TestDecodeValidation(t *testing.T) {
	tests := []struct {
		name  string
		event MessageType
		data  string
		into  any
		field string
	}{
		{"missing name", TypeRoomCreate, `{}`, &CreateRoomData{}, "playerName"},
		{"settings out of range", TypeRoomCreate, `{"playerName":"a","settings":{"maxPlayers":12}}`, &CreateRoomData{}, "maxPlayers"},
		{"ready must be present", TypeGameReady, `{}`, &ReadyData{}, "ready"},
		{"rejoin needs uuid", TypeRoomRejoin, `{"roomCode":"ABC234","playerId":"nope","token":"t"}`, &RejoinRoomData{}, "playerId"},
		{"empty action", TypeGameAction, `null`, &ActionData{}, "type"},
		{"empty chat", TypeChatMessage, `{"text":""}`, &SendChatData{}, "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Type: tt.event, Data: json.RawMessage(tt.data)}
			err := msg.Decode(tt.into)
			require.True(t, errors.IsCode(err, errors.CodeInvalidPayload), "got %v", err)
			assert.Equal(t, tt.field, errors.GetMetadata(err)["field"])
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	msg := &Message{Type: TypeGameReady, Data: json.RawMessage(`{"ready":"yes"}`)}
	err := msg.Decode(&ReadyData{})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidPayload))
}

func TestReadyFalseIsValid(t *testing.T) {
	msg := &Message{Type: TypeGameReady, Data: json.RawMessage(`{"ready":false}`)}
	var data ReadyData
	require.NoError(t, msg.Decode(&data))
	require.NotNil(t, data.Ready)
	assert.False(t, *data.Ready)
}
