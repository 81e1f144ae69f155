package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCode(t *testing.T) {
	err := fmt.Errorf("join: %w", New(CodeRoomFull, "room is full"))

	assert.Equal(t, CodeRoomFull, GetCode(err))
	assert.True(t, IsCode(err, CodeRoomFull))
	assert.Equal(t, CodeUnknown, GetCode(errors.New("plain")))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := Newf(CodeNotHost, "player %s is not host", "p1")
	require.ErrorIs(t, err, New(CodeNotHost, ""))
	assert.NotErrorIs(t, err, New(CodeRoomFull, ""))
}

func TestCodeKinds(t *testing.T) {
	tests := []struct {
		code Code
		kind Kind
	}{
		{CodeInvalidPayload, KindValidation},
		{CodeNotHost, KindAuthorization},
		{CodeNotYourTurn, KindAuthorization},
		{CodeRoomFull, KindLifecycle},
		{CodeGameInProgress, KindLifecycle},
		{CodeInvalidAction, KindInvalidAction},
		{CodeActionFailed, KindInternal},
		{CodeUnknown, KindInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.code.Kind())
		})
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	code, msg := PublicMessage(Wrap(CodeActionFailed, "handler panicked", errors.New("nil map")))
	assert.Equal(t, CodeActionFailed, code)
	assert.Equal(t, "an unexpected error occurred", msg)

	code, msg = PublicMessage(errors.New("boom"))
	assert.Equal(t, CodeInternal, code)
	assert.Equal(t, "an unexpected error occurred", msg)

	code, msg = PublicMessage(New(CodeRoomFull, "room is full"))
	assert.Equal(t, CodeRoomFull, code)
	assert.Equal(t, "room is full", msg)
}

func TestMetadata(t *testing.T) {
	err := New(CodeRoomNotFound, "room not found").WithMetadata("code", "ABC234")
	assert.Equal(t, map[string]string{"code": "ABC234"}, GetMetadata(err))
}
