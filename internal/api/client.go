// ABOUTME: HTTP client for the platform REST API
// ABOUTME: Unwraps the {code, message, data} envelope and walks paginated lists

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://www.kookapp.cn"

const (
	pathGatewayIndex        = "/api/v3/gateway/index"
	pathUserMe              = "/api/v3/user/me"
	pathUserView            = "/api/v3/user/view"
	pathUserOffline         = "/api/v3/user/offline"
	pathGuildList           = "/api/v3/guild/list"
	pathGuildView           = "/api/v3/guild/view"
	pathGuildUserList       = "/api/v3/guild/user-list"
	pathGuildNickname       = "/api/v3/guild/nickname"
	pathGuildLeave          = "/api/v3/guild/leave"
	pathMessageCreate       = "/api/v3/message/create"
	pathDirectMessageCreate = "/api/v3/direct-message/create"

	pageSize = 50
	maxPages = 1 << 16
)

// ErrUnexpectedStatus is wrapped when the API answers with a non-2xx status
// and no decodable envelope.
var ErrUnexpectedStatus = errors.New("api: unexpected HTTP status")

// Error is a non-zero code in the response envelope.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Client calls the REST API with one token.
type Client struct {
	baseURL string
	token   Token
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. The default has no timeout;
// callers bound requests through ctx.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, token Token, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	return c
}

// GatewayURL returns the websocket URL to connect to. With compress set the
// gateway sends zlib-compressed binary frames.
func (c *Client) GatewayURL(ctx context.Context, compress bool) (string, error) {
	q := url.Values{}
	q.Set("compress", boolParam(compress))

	var idx gatewayIndex
	if err := c.get(ctx, pathGatewayIndex, q, &idx); err != nil {
		return "", fmt.Errorf("getting gateway url: %w", err)
	}
	if idx.URL == "" {
		return "", fmt.Errorf("getting gateway url: empty url in response")
	}
	return idx.URL, nil
}

// Me returns the identity of the token's owner.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, pathUserMe, nil, &u); err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &u, nil
}

// UserView returns a user; guildID is optional and adds guild-scoped fields.
func (c *Client) UserView(ctx context.Context, userID, guildID string) (*User, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	if guildID != "" {
		q.Set("guild_id", guildID)
	}

	var u User
	if err := c.get(ctx, pathUserView, q, &u); err != nil {
		return nil, fmt.Errorf("viewing user %s: %w", userID, err)
	}
	return &u, nil
}

// Offline logs the bot out of the gateway.
func (c *Client) Offline(ctx context.Context) error {
	if err := c.post(ctx, pathUserOffline, struct{}{}, nil); err != nil {
		return fmt.Errorf("going offline: %w", err)
	}
	return nil
}

// CreateMessage sends a channel message.
func (c *Client) CreateMessage(ctx context.Context, msgType MessageType, targetID, content string) (*MessageReceipt, error) {
	var receipt MessageReceipt
	req := createMessageRequest{Type: msgType, TargetID: targetID, Content: content}
	if err := c.post(ctx, pathMessageCreate, req, &receipt); err != nil {
		return nil, fmt.Errorf("creating message in %s: %w", targetID, err)
	}
	return &receipt, nil
}

// CreateDirectMessage sends a private message to a user.
func (c *Client) CreateDirectMessage(ctx context.Context, msgType MessageType, userID, content string) (*MessageReceipt, error) {
	var receipt MessageReceipt
	req := createMessageRequest{Type: msgType, TargetID: userID, Content: content}
	if err := c.post(ctx, pathDirectMessageCreate, req, &receipt); err != nil {
		return nil, fmt.Errorf("creating direct message to %s: %w", userID, err)
	}
	return &receipt, nil
}

// Guilds lists every guild the bot has joined.
func (c *Client) Guilds(ctx context.Context) ([]Guild, error) {
	guilds, err := listAll[Guild](ctx, c, pathGuildList, nil)
	if err != nil {
		return nil, fmt.Errorf("listing guilds: %w", err)
	}
	return guilds, nil
}

// GuildView returns one guild with its roles and channels.
func (c *Client) GuildView(ctx context.Context, guildID string) (*GuildDetail, error) {
	q := url.Values{}
	q.Set("guild_id", guildID)

	var g GuildDetail
	if err := c.get(ctx, pathGuildView, q, &g); err != nil {
		return nil, fmt.Errorf("viewing guild %s: %w", guildID, err)
	}
	return &g, nil
}

// GuildMembers lists every member of a guild.
func (c *Client) GuildMembers(ctx context.Context, guildID string) ([]GuildMember, error) {
	q := url.Values{}
	q.Set("guild_id", guildID)

	members, err := listAll[GuildMember](ctx, c, pathGuildUserList, q)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", guildID, err)
	}
	return members, nil
}

// SetNickname changes a member's nickname; an empty userID targets the bot.
func (c *Client) SetNickname(ctx context.Context, guildID, userID, nickname string) error {
	req := guildNicknameRequest{GuildID: guildID, UserID: userID, Nickname: nickname}
	if err := c.post(ctx, pathGuildNickname, req, nil); err != nil {
		return fmt.Errorf("setting nickname in %s: %w", guildID, err)
	}
	return nil
}

// LeaveGuild makes the bot leave a guild.
func (c *Client) LeaveGuild(ctx context.Context, guildID string) error {
	if err := c.post(ctx, pathGuildLeave, guildLeaveRequest{GuildID: guildID}, nil); err != nil {
		return fmt.Errorf("leaving guild %s: %w", guildID, err)
	}
	return nil
}

// listAll walks pages 1..page_total.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var out []T
	for p := 1; p <= maxPages; p++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(p))
		q.Set("page_size", strconv.Itoa(pageSize))
		q.Set("sort", "0")

		var pg page[T]
		if err := c.get(ctx, path, q, &pg); err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		out = append(out, pg.Items...)

		if len(pg.Items) == 0 || pg.Meta.Page >= pg.Meta.PageTotal {
			break
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.token.String())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("api response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(string(body), 200))
		}
		return fmt.Errorf("decoding response envelope: %w", err)
	}
	if env.Code != 0 {
		return &Error{Code: env.Code, Message: env.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
