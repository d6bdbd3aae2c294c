package gateway

import (
	"encoding/json"

	apperr "dehive/pkg/errors"
)

// inboundFrame is the single canonical wire shape: a JSON text message with
// an event name and an object payload. Double-encoded payloads (a JSON
// string containing JSON) are rejected rather than second-guessed.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func parseFrame(raw []byte) (*inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, apperr.InvalidArg("malformed frame")
	}
	if f.Event == "" {
		return nil, apperr.InvalidArg("missing event name")
	}
	if len(f.Data) > 0 && f.Data[0] == '"' {
		return nil, apperr.InvalidArg("payload must be a JSON object, not a string")
	}
	return &f, nil
}

func decodePayload(f *inboundFrame, dst any) error {
	if len(f.Data) == 0 {
		return apperr.InvalidArg("missing payload")
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return apperr.InvalidArg("malformed payload")
	}
	return nil
}

type identityPayload struct {
	UserID string `json:"userId"`
}

type sendMessagePayload struct {
	ConversationID string   `json:"conversationId"`
	Content        string   `json:"content"`
	UploadIDs      []string `json:"uploadIds,omitempty"`
	ReplyTo        string   `json:"replyTo,omitempty"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

type channelPayload struct {
	ChannelID string `json:"channelId"`
}
