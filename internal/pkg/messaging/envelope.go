package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed marks payloads that cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// envelope is the on-the-wire frame shared by all backends.
type envelope struct {
	ID     string          `json:"id"`
	Topic  Topic           `json:"topic"`
	Key    string          `json:"key"`
	SentAt time.Time       `json:"sent_at"`
	Body   json.RawMessage `json:"body"`
}

func encode(topic Topic, key string, msg any) ([]byte, string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, "", fmt.Errorf("marshal message: %w", err)
	}
	env := envelope{
		ID:     uuid.NewString(),
		Topic:  topic,
		Key:    key,
		SentAt: time.Now().UTC(),
		Body:   body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("marshal envelope: %w", err)
	}
	return data, env.ID, nil
}

func decode(data []byte) (*Delivery, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ID == "" || len(env.Body) == 0 {
		return nil, fmt.Errorf("%w: missing id or body", ErrMalformed)
	}
	return &Delivery{
		ID:      env.ID,
		Topic:   env.Topic,
		Key:     env.Key,
		SentAt:  env.SentAt,
		Payload: env.Body,
	}, nil
}
