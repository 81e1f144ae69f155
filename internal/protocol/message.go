// Package protocol defines the WebSocket wire format: a JSON envelope naming
// one event, and the payload carried by each event.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lox/cardroom/internal/errors"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Reply builds a message answering req, echoing its request id.
func Reply(req *Message, messageType MessageType, data any) (*Message, error) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	if req != nil {
		msg.RequestID = req.RequestID
	}
	return msg, nil
}

// ParseMessage decodes one inbound frame.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidMessage, "message is not valid JSON", err)
	}
	if msg.Type == "" {
		return nil, errors.New(errors.CodeInvalidMessage, "message has no event")
	}
	return &msg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode unmarshals the payload into v and validates it. Failures are
// INVALID_PAYLOAD errors.
func (m *Message) Decode(v any) error {
	data := m.Data
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.CodeInvalidPayload, fmt.Sprintf("malformed %s payload", m.Type), err)
	}
	return Validate(v)
}

// Validate checks v against its validate tags.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errors.Wrap(errors.CodeInvalidPayload, describe(fe), err).
			WithMetadata("field", fe.Field())
	}
	return errors.Wrap(errors.CodeInvalidPayload, "invalid payload", err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "max", "len":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
