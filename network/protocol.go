package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"swipechat/models"
)

const (
	// MaxFrameSize is the maximum accepted inbound event frame (1 MB).
	MaxFrameSize = 1024 * 1024
	// DefaultConnectionTimeout bounds the websocket dial and handshake.
	DefaultConnectionTimeout = 30 * time.Second
	// DefaultWriteWait bounds a single frame write.
	DefaultWriteWait = 10 * time.Second
	// DefaultPongWait is how long the reader waits for any frame or pong.
	DefaultPongWait = 60 * time.Second
	// DefaultSendBuffer is the outbound frame queue length.
	DefaultSendBuffer = 64
	// DefaultEventBuffer is the inbound event queue length.
	DefaultEventBuffer = 256
)

var (
	// ErrFrameTooLarge indicates payload exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("network: frame exceeds max size")
	// ErrInvalidEventName indicates a frame without an event name.
	ErrInvalidEventName = errors.New("network: invalid event name")
)

// EncodeEvent marshals one event frame.
func EncodeEvent(ev models.Event) ([]byte, error) {
	if ev.Name == "" {
		return nil, ErrInvalidEventName
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %q: %w", ev.Name, err)
	}
	if len(payload) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return payload, nil
}

// DecodeEvent parses one inbound frame into an event envelope. The payload
// is left raw; callers validate it against the typed record for the name.
func DecodeEvent(payload []byte) (models.Event, error) {
	if len(payload) > MaxFrameSize {
		return models.Event{}, ErrFrameTooLarge
	}
	var ev models.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Name == "" {
		return models.Event{}, ErrInvalidEventName
	}
	return ev, nil
}
