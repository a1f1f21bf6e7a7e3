package messages

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Message is a single contact form submission.
// ID and CreatedAt are always assigned by the store.
type Message struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type NewMessageRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required"`
}

// newMessageRow is what gets sent to the store on insert.
type newMessageRow struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// storedMessage is a row as echoed by the REST endpoint. The id column may be
// a uuid or a bigint depending on the table definition.
type storedMessage struct {
	ID        json.RawMessage `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Message   string          `json:"message"`
	CreatedAt string          `json:"created_at"`
}

func (s storedMessage) toMessage() Message {
	return Message{
		ID:        rawID(s.ID),
		Name:      s.Name,
		Email:     s.Email,
		Message:   s.Message,
		CreatedAt: s.CreatedAt,
	}
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		if id, err := strconv.Unquote(string(raw)); err == nil {
			return id
		}
	}
	return string(raw)
}
