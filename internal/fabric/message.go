package fabric

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Discriminators of the recognized inter-shard messages.
const (
	DiscriminatorCheck = "snipe-check"
	DiscriminatorReady = "ready"
)

// ErrUnknownDiscriminator is returned by Decode for payloads of an unrecognized kind.
var ErrUnknownDiscriminator = errors.New("unknown discriminator")

// Message is one of CheckMessage or ReadyMessage.
type Message interface {
	Discriminator() string
	isMessage()
}

// CheckMessage asks a shard to evaluate pending orders against a pool.
type CheckMessage struct {
	PoolID string `json:"poolId"`
	Slot   int64  `json:"slot"`
}

func (CheckMessage) Discriminator() string { return DiscriminatorCheck }
func (CheckMessage) isMessage()            {}

// ReadyMessage announces that a shard has subscribed to its channel.
type ReadyMessage struct {
	Shard int   `json:"shard"`
	At    int64 `json:"at"` // Unix milliseconds
}

func (ReadyMessage) Discriminator() string { return DiscriminatorReady }
func (ReadyMessage) isMessage()            {}

type envelope struct {
	Discriminator string `json:"discriminator"`
	PoolID        string `json:"poolId,omitempty"`
	Slot          int64  `json:"slot,omitempty"`
	Shard         *int   `json:"shard,omitempty"`
	At            int64  `json:"at,omitempty"`
}

// Encode serializes m as a flat JSON object carrying a discriminator field.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch v := m.(type) {
	case CheckMessage:
		env = envelope{Discriminator: DiscriminatorCheck, PoolID: v.PoolID, Slot: v.Slot}
	case *CheckMessage:
		env = envelope{Discriminator: DiscriminatorCheck, PoolID: v.PoolID, Slot: v.Slot}
	case ReadyMessage:
		shard := v.Shard
		env = envelope{Discriminator: DiscriminatorReady, Shard: &shard, At: v.At}
	case *ReadyMessage:
		shard := v.Shard
		env = envelope{Discriminator: DiscriminatorReady, Shard: &shard, At: v.At}
	default:
		return nil, fmt.Errorf("encode %T: %w", m, ErrUnknownDiscriminator)
	}
	return json.Marshal(env)
}

// Decode parses a payload into its message variant.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch env.Discriminator {
	case DiscriminatorCheck:
		if env.PoolID == "" {
			return nil, fmt.Errorf("decode %s: missing poolId", DiscriminatorCheck)
		}
		return CheckMessage{PoolID: env.PoolID, Slot: env.Slot}, nil
	case DiscriminatorReady:
		msg := ReadyMessage{At: env.At}
		if env.Shard != nil {
			msg.Shard = *env.Shard
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDiscriminator, env.Discriminator)
	}
}
