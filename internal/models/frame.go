package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	FrameDirect = "direct"
	FrameGroup  = "group"
	FrameError  = "error"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is an inbound websocket message. The set of implementations is
// closed: *DirectFrame and *GroupFrame.
type Frame interface {
	Kind() string
	frame()
}

type DirectFrame struct {
	ChatID  uuid.UUID
	ToID    uuid.UUID
	Content string
}

func (*DirectFrame) Kind() string { return FrameDirect }
func (*DirectFrame) frame()       {}

type GroupFrame struct {
	GroupID uuid.UUID
	Content string
}

func (*GroupFrame) Kind() string { return FrameGroup }
func (*GroupFrame) frame()       {}

type inboundEnvelope struct {
	Type    string  `json:"type"`
	ChatID  *string `json:"chat_id"`
	ToID    *string `json:"to_id"`
	GroupID *string `json:"group_id"`
	Content string  `json:"content"`
	// from_id may be present in client payloads; it is never read.
}

// DecodeFrame parses one text payload. Any error wraps ErrMalformedFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case FrameDirect:
		chatID, err := requiredID("chat_id", env.ChatID)
		if err != nil {
			return nil, err
		}
		toID, err := requiredID("to_id", env.ToID)
		if err != nil {
			return nil, err
		}
		return &DirectFrame{ChatID: chatID, ToID: toID, Content: env.Content}, nil
	case FrameGroup:
		groupID, err := requiredID("group_id", env.GroupID)
		if err != nil {
			return nil, err
		}
		return &GroupFrame{GroupID: groupID, Content: env.Content}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, env.Type)
	}
}

func requiredID(field string, raw *string) (uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing %s", ErrMalformedFrame, field)
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %s: %v", ErrMalformedFrame, field, err)
	}
	return id, nil
}

type directOut struct {
	Type string `json:"type"`
	*DirectMessage
}

type groupOut struct {
	Type string `json:"type"`
	*GroupMessage
}

// ErrorFrame is the warning sent back to a sender's own session.
type ErrorFrame struct {
	Type string `json:"type"`
	Code string `json:"code"`
	Err  string `json:"err"`
	Ref  string `json:"ref,omitempty"`
}

func EncodeDirect(msg *DirectMessage) ([]byte, error) {
	return json.Marshal(directOut{Type: FrameDirect, DirectMessage: msg})
}

func EncodeGroup(msg *GroupMessage) ([]byte, error) {
	return json.Marshal(groupOut{Type: FrameGroup, GroupMessage: msg})
}

func EncodeError(code, message, ref string) []byte {
	// Marshalling three strings cannot fail.
	data, _ := json.Marshal(ErrorFrame{Type: FrameError, Code: code, Err: message, Ref: ref})
	return data
}
