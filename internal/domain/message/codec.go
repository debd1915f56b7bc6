package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for an envelope type outside the command set.
	ErrUnknownKind = errors.New("unknown message type")
	// ErrMalformed is returned for envelopes that do not decode.
	ErrMalformed = errors.New("malformed message")
)

// Envelope is the wire frame shared by HTTP and websocket transports.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func decodeInto[T Command](payload json.RawMessage) (Command, error) {
	var cmd T
	if len(payload) == 0 {
		return cmd, nil
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cmd, nil
}

// DecodeCommand parses a client frame. Server-internal kinds are refused.
func DecodeCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case KindJoin:
		return decodeInto[Join](env.Payload)
	case KindLeave:
		return decodeInto[Leave](env.Payload)
	case KindStartRound:
		return decodeInto[StartRound](env.Payload)
	case KindLockParlay:
		return decodeInto[LockParlay](env.Payload)
	case KindStartPlayback:
		return decodeInto[StartPlayback](env.Payload)
	case KindSubmitVote:
		return decodeInto[SubmitVote](env.Payload)
	case KindHostConfirmEvent:
		return decodeInto[HostConfirmEvent](env.Payload)
	case KindHostDismissEvent:
		return decodeInto[HostDismissEvent](env.Payload)
	case KindSubmitWheelEntry:
		return decodeInto[SubmitWheelEntry](env.Payload)
	case KindModerateWheelEntry:
		return decodeInto[ModerateWheelEntry](env.Payload)
	case KindSpinWheel:
		return decodeInto[SpinWheel](env.Payload)
	case KindEndRound:
		return decodeInto[EndRound](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

// WithPlayer returns cmd with its player ID forced to playerID. Transports use
// it so a connection can only speak for the player it authenticated as.
func WithPlayer(cmd Command, playerID string) Command {
	switch c := cmd.(type) {
	case Join:
		c.PlayerID = playerID
		return c
	case Leave:
		c.PlayerID = playerID
		return c
	case StartRound:
		c.PlayerID = playerID
		return c
	case LockParlay:
		c.PlayerID = playerID
		return c
	case StartPlayback:
		c.PlayerID = playerID
		return c
	case SubmitVote:
		c.PlayerID = playerID
		return c
	case HostConfirmEvent:
		c.PlayerID = playerID
		return c
	case HostDismissEvent:
		c.PlayerID = playerID
		return c
	case SubmitWheelEntry:
		c.PlayerID = playerID
		return c
	case ModerateWheelEntry:
		c.PlayerID = playerID
		return c
	case SpinWheel:
		c.PlayerID = playerID
		return c
	case EndRound:
		c.PlayerID = playerID
		return c
	default:
		return cmd
	}
}

// Encode wraps an output in the wire envelope.
func Encode(o Outbound) ([]byte, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", o.Kind(), err)
	}
	return json.Marshal(Envelope{Type: o.Kind(), Payload: payload})
}
