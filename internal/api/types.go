// ABOUTME: Result types returned by the REST client
// ABOUTME: Users, guilds, gateway index, and created message receipts

package api

import (
	"encoding/json"
	"fmt"
)

// envelope is the common response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type pageMeta struct {
	Page      int `json:"page"`
	PageTotal int `json:"page_total"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
}

type page[T any] struct {
	Items []T      `json:"items"`
	Meta  pageMeta `json:"meta"`
}

// Flag is a boolean the API sends either as true/false or as 0/1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", b)
	}
	return nil
}

// User is the identity returned by user/me and user/view.
type User struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Nickname       string   `json:"nickname,omitempty"`
	IdentifyNum    string   `json:"identify_num"`
	Online         bool     `json:"online"`
	OS             string   `json:"os,omitempty"`
	Status         int      `json:"status"`
	Avatar         string   `json:"avatar"`
	VIPAvatar      string   `json:"vip_avatar,omitempty"`
	Banner         string   `json:"banner,omitempty"`
	Bot            bool     `json:"bot"`
	MobileVerified bool     `json:"mobile_verified"`
	ClientID       string   `json:"client_id,omitempty"`
	Roles          []uint64 `json:"roles,omitempty"`
	JoinedAt       int64    `json:"joined_at,omitempty"`
	ActiveTime     int64    `json:"active_time,omitempty"`
}

// Guild is a server the bot belongs to.
type Guild struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Topic            string `json:"topic"`
	UserID           string `json:"user_id"`
	Icon             string `json:"icon"`
	NotifyType       int    `json:"notify_type"`
	Region           string `json:"region"`
	EnableOpen       Flag   `json:"enable_open"`
	OpenID           string `json:"open_id"`
	DefaultChannelID string `json:"default_channel_id"`
	WelcomeChannelID string `json:"welcome_channel_id"`
}

// GuildDetail is the guild/view result; roles and channels stay raw.
type GuildDetail struct {
	Guild
	Roles    json.RawMessage `json:"roles,omitempty"`
	Channels json.RawMessage `json:"channels,omitempty"`
}

// GuildMember is one entry of guild/user-list.
type GuildMember struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Nickname    string   `json:"nickname"`
	IdentifyNum string   `json:"identify_num"`
	Online      bool     `json:"online"`
	Status      int      `json:"status"`
	Bot         bool     `json:"bot"`
	Avatar      string   `json:"avatar"`
	VIPAvatar   string   `json:"vip_avatar"`
	Roles       []uint64 `json:"roles"`
}

// MessageType is the "type" of a created message.
type MessageType int

const (
	MessageText      MessageType = 1
	MessageKMarkdown MessageType = 9
	MessageCard      MessageType = 10
)

// MessageReceipt is returned when a message is created.
type MessageReceipt struct {
	MsgID        string `json:"msg_id"`
	MsgTimestamp int64  `json:"msg_timestamp"`
	Nonce        string `json:"nonce"`
}

type gatewayIndex struct {
	URL string `json:"url"`
}

type createMessageRequest struct {
	Type     MessageType `json:"type"`
	TargetID string      `json:"target_id"`
	Content  string      `json:"content"`
	Quote    string      `json:"quote,omitempty"`
}

type guildNicknameRequest struct {
	GuildID  string `json:"guild_id"`
	Nickname string `json:"nickname"`
	UserID   string `json:"user_id,omitempty"`
}

type guildLeaveRequest struct {
	GuildID string `json:"guild_id"`
}
