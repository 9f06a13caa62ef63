// ABOUTME: Platform event payload carried by s=0 frames
// ABOUTME: Common header fields plus typed access to the raw "extra" object

package wire

import (
	"encoding/json"
	"fmt"
)

// EventType is the "type" field of an event payload.
type EventType int

const (
	EventText      EventType = 1
	EventImage     EventType = 2
	EventVideo     EventType = 3
	EventFile      EventType = 4
	EventKMarkdown EventType = 9
	EventCard      EventType = 10
	EventItem      EventType = 12
	EventSystem    EventType = 255
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventImage:
		return "image"
	case EventVideo:
		return "video"
	case EventFile:
		return "file"
	case EventKMarkdown:
		return "kmarkdown"
	case EventCard:
		return "card"
	case EventItem:
		return "item"
	case EventSystem:
		return "system"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Channel types seen in channel_type.
const (
	ChannelGroup     = "GROUP"
	ChannelPerson    = "PERSON"
	ChannelBroadcast = "BROADCAST"
)

// Event is one platform event. Extra is kept raw in compact JSON form; see
// Author and SystemExtra.
type Event struct {
	ChannelType  string          `json:"channel_type"`
	Type         EventType       `json:"type"`
	TargetID     string          `json:"target_id"`
	AuthorID     string          `json:"author_id"`
	Content      string          `json:"content"`
	MsgID        string          `json:"msg_id"`
	MsgTimestamp int64           `json:"msg_timestamp"`
	Nonce        string          `json:"nonce"`
	Extra        json.RawMessage `json:"extra,omitempty"`
}

// IsMessage reports whether the event is a user message rather than a
// system notification.
func (e *Event) IsMessage() bool {
	return e.Type != EventSystem
}

// IsPrivate reports whether the event came from a direct conversation.
func (e *Event) IsPrivate() bool {
	return e.ChannelType == ChannelPerson
}

// Author is the sender block found in extra.author on message events.
type Author struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	IdentifyNum string   `json:"identify_num"`
	Nickname    string   `json:"nickname"`
	Avatar      string   `json:"avatar"`
	Online      bool     `json:"online"`
	Bot         bool     `json:"bot"`
	Roles       []uint64 `json:"roles"`
}

// MessageExtra is the subset of extra shared by text and KMarkdown messages.
type MessageExtra struct {
	GuildID      string   `json:"guild_id"`
	ChannelName  string   `json:"channel_name"`
	Mention      []string `json:"mention"`
	MentionAll   bool     `json:"mention_all"`
	MentionRoles []uint64 `json:"mention_roles"`
	MentionHere  bool     `json:"mention_here"`
	Code         string   `json:"code"`
	Author       Author   `json:"author"`
}

// MessageExtra decodes extra for message events.
func (e *Event) MessageExtra() (*MessageExtra, error) {
	if !e.IsMessage() {
		return nil, fmt.Errorf("event type %s has no message extra", e.Type)
	}
	var extra MessageExtra
	if err := json.Unmarshal(e.Extra, &extra); err != nil {
		return nil, fmt.Errorf("decoding message extra: %w", err)
	}
	return &extra, nil
}

// SystemExtra is the {type, body} object of a system event. Body is left raw
// because its shape depends on Type (added_reaction, joined_guild, ...).
type SystemExtra struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// SystemExtra decodes extra for system events.
func (e *Event) SystemExtra() (*SystemExtra, error) {
	if e.Type != EventSystem {
		return nil, fmt.Errorf("event type %s is not a system event", e.Type)
	}
	var extra SystemExtra
	if err := json.Unmarshal(e.Extra, &extra); err != nil {
		return nil, fmt.Errorf("decoding system extra: %w", err)
	}
	return &extra, nil
}
