package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification is the display part of a push message.
type Notification struct {
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	Icon      string `json:"icon,omitempty"`
	ImageURL  string `json:"image,omitempty"`
	ChannelID string `json:"android_channel_id,omitempty"`
	Tag       string `json:"tag,omitempty"`
}

// RemoteMessage is a push message delivered to a Service.
type RemoteMessage struct {
	MessageID    string            `json:"message_id,omitempty"`
	From         string            `json:"from,omitempty"`
	CollapseKey  string            `json:"collapse_key,omitempty"`
	MessageType  string            `json:"message_type,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	TTL          int               `json:"ttl,omitempty"`
	SentTime     int64             `json:"sent_time,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
}

// Sent returns SentTime, in milliseconds since the epoch, as a time.Time.
func (m RemoteMessage) Sent() time.Time {
	if m.SentTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.SentTime)
}

// DecodeData unmarshals the JSON text stored under key into v.
func (m RemoteMessage) DecodeData(key string, v any) error {
	raw, ok := m.Data[key]
	if !ok {
		return fmt.Errorf("no data entry %q", key)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding data entry %q: %w", key, err)
	}
	return nil
}

// wireMessage accepts data values of any JSON type.
type wireMessage struct {
	RemoteMessage
	Data map[string]json.RawMessage `json:"data,omitempty"`
}

// ParseRemoteMessage parses a JSON push payload. Data values that are not
// JSON strings are kept as their JSON text. A message without an ID gets a
// random one.
func ParseRemoteMessage(raw []byte) (RemoteMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return RemoteMessage{}, fmt.Errorf("parsing push payload: %w", err)
	}

	msg := wire.RemoteMessage
	if len(wire.Data) > 0 {
		msg.Data = make(map[string]string, len(wire.Data))
		for k, v := range wire.Data {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				msg.Data[k] = s
			} else {
				msg.Data[k] = string(v)
			}
		}
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	return msg, nil
}
