package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
	"github.com/opencode-ai/chatbridge/internal/logging"
)

// Client implements chatplatform.Client against a live Mattermost server's
// REST API (v4) plus its WebSocket event feed. One Client serves one
// configured platform instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.RWMutex
	bot      chatplatform.User
	userByID map[string]chatplatform.User

	ws        *websocket.Conn
	wsCancel  context.CancelFunc
	events    chan chatplatform.MessageEvent
	reactions chan chatplatform.ReactionEvent
}

// New returns a Client configured against baseURL (e.g.
// "https://chat.example.com") authenticating every REST and WebSocket call
// with token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logging.Component("chatplatform.mattermost"),
		userByID:   make(map[string]chatplatform.User),
		events:     make(chan chatplatform.MessageEvent, 64),
		reactions:  make(chan chatplatform.ReactionEvent, 64),
	}
}

// Connect fetches the bot's own identity, dials the WebSocket feed, and
// launches the background read pump. Matches spec.md §6's "connect once at
// startup, then stream" lifecycle.
func (c *Client) Connect(ctx context.Context) error {
	me, err := c.getMe(ctx)
	if err != nil {
		return fmt.Errorf("mattermost: fetch bot identity: %w", err)
	}
	c.mu.Lock()
	c.bot = me
	c.userByID[me.ID] = me
	c.mu.Unlock()

	pumpCtx, cancel := context.WithCancel(context.Background())
	conn, err := c.dialWebSocket(pumpCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("mattermost: dial websocket: %w", err)
	}
	c.mu.Lock()
	c.ws = conn
	c.wsCancel = cancel
	c.mu.Unlock()

	go c.readPump(pumpCtx, conn)
	return nil
}

// Disconnect tears down the WebSocket connection and closes the event
// channels, matching chatplatform.Client's documented contract.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel := c.wsCancel
	conn := c.ws
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	close(c.events)
	close(c.reactions)
	return err
}

func (c *Client) BotUser() chatplatform.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

func (c *Client) BotName() string { return c.BotUser().Username }

func (c *Client) IsUserAllowed(username string, allowed map[string]bool) bool {
	return allowed[username]
}

func (c *Client) GetUser(ctx context.Context, userID string) (chatplatform.User, error) {
	c.mu.RLock()
	if u, ok := c.userByID[userID]; ok {
		c.mu.RUnlock()
		return u, nil
	}
	c.mu.RUnlock()

	var wu wireUser
	if err := c.do(ctx, http.MethodGet, "/api/v4/users/"+userID, nil, &wu); err != nil {
		return chatplatform.User{}, fmt.Errorf("mattermost: get user %s: %w", userID, err)
	}
	u := chatplatform.User{ID: wu.ID, Username: wu.Username, IsBot: wu.IsBot}
	c.mu.Lock()
	c.userByID[u.ID] = u
	c.mu.Unlock()
	return u, nil
}

func (c *Client) getMe(ctx context.Context) (chatplatform.User, error) {
	var wu wireUser
	if err := c.do(ctx, http.MethodGet, "/api/v4/users/me", nil, &wu); err != nil {
		return chatplatform.User{}, err
	}
	return chatplatform.User{ID: wu.ID, Username: wu.Username, IsBot: true}, nil
}

// CreatePost posts message in threadID's channel. threadID is either
// "<channelId>", which starts a new root post, or "<channelId>:<rootPostId>",
// which replies in that thread (see splitThreadID).
func (c *Client) CreatePost(ctx context.Context, message, threadID string) (chatplatform.Post, error) {
	channelID, rootID := c.splitThreadID(threadID)
	body := wirePost{ChannelID: channelID, RootID: rootID, Message: message}
	var resp wirePost
	if err := c.do(ctx, http.MethodPost, "/api/v4/posts", body, &resp); err != nil {
		return chatplatform.Post{}, fmt.Errorf("mattermost: create post: %w", err)
	}
	return toPost(resp), nil
}

func (c *Client) UpdatePost(ctx context.Context, postID, message string) error {
	body := map[string]string{"id": postID, "message": message}
	if err := c.do(ctx, http.MethodPut, "/api/v4/posts/"+postID+"/patch", body, nil); err != nil {
		return fmt.Errorf("mattermost: update post %s: %w", postID, err)
	}
	return nil
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v4/posts/"+postID, nil, nil); err != nil {
		return fmt.Errorf("mattermost: delete post %s: %w", postID, err)
	}
	return nil
}

// CreateInteractivePost posts message then immediately reacts to it with
// every emoji in emojiNames, giving a reactable prompt in one round trip
// from the caller's perspective.
func (c *Client) CreateInteractivePost(ctx context.Context, message string, emojiNames []string, threadID string) (chatplatform.Post, error) {
	post, err := c.CreatePost(ctx, message, threadID)
	if err != nil {
		return post, err
	}
	for _, emoji := range emojiNames {
		if err := c.AddReaction(ctx, post.ID, emoji); err != nil {
			c.log.Warn().Err(err).Str("postId", post.ID).Str("emoji", emoji).Msg("failed to seed reaction on interactive post")
		}
	}
	return post, nil
}

func (c *Client) GetPost(ctx context.Context, postID string) (chatplatform.Post, error) {
	var wp wirePost
	if err := c.do(ctx, http.MethodGet, "/api/v4/posts/"+postID, nil, &wp); err != nil {
		return chatplatform.Post{}, fmt.Errorf("mattermost: get post %s: %w", postID, err)
	}
	return toPost(wp), nil
}

// GetThreadHistory fetches a thread's posts in channel-feed order (oldest
// first at index 0 per Mattermost's thread endpoint) and applies
// opts.ExcludeBotMessages/opts.Limit client-side, taking the most recent
// Limit posts.
func (c *Client) GetThreadHistory(ctx context.Context, threadID string, opts chatplatform.ThreadHistoryOptions) ([]chatplatform.Post, error) {
	var resp struct {
		Order []string             `json:"order"`
		Posts map[string]wirePost `json:"posts"`
	}
	_, rootID := c.splitThreadID(threadID)
	if rootID == "" {
		rootID = threadID
	}
	if err := c.do(ctx, http.MethodGet, "/api/v4/posts/"+rootID+"/thread", nil, &resp); err != nil {
		return nil, fmt.Errorf("mattermost: get thread %s: %w", threadID, err)
	}

	c.mu.RLock()
	botID := c.bot.ID
	c.mu.RUnlock()

	out := make([]chatplatform.Post, 0, len(resp.Order))
	for _, id := range resp.Order {
		wp, ok := resp.Posts[id]
		if !ok {
			continue
		}
		if opts.ExcludeBotMessages && wp.UserID == botID {
			continue
		}
		out = append(out, toPost(wp))
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out, nil
}

func (c *Client) AddReaction(ctx context.Context, postID, emojiName string) error {
	c.mu.RLock()
	botID := c.bot.ID
	c.mu.RUnlock()
	body := wireReaction{UserID: botID, PostID: postID, EmojiName: emojiName}
	if err := c.do(ctx, http.MethodPost, "/api/v4/reactions", body, nil); err != nil {
		return fmt.Errorf("mattermost: add reaction %s to post %s: %w", emojiName, postID, err)
	}
	return nil
}

func (c *Client) SendTyping(ctx context.Context, threadID string) error {
	channelID, _ := c.splitThreadID(threadID)
	body := map[string]string{"channel_id": channelID}
	if err := c.do(ctx, http.MethodPost, "/api/v4/users/me/typing", body, nil); err != nil {
		return fmt.Errorf("mattermost: send typing: %w", err)
	}
	return nil
}

func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v4/files/"+fileID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mattermost: download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mattermost: download file %s: status %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mattermost: read file %s: %w", fileID, err)
	}
	return data, nil
}

func (c *Client) GetFileInfo(ctx context.Context, fileID string) (chatplatform.FileInfo, error) {
	var wf wireFileInfo
	if err := c.do(ctx, http.MethodGet, "/api/v4/files/"+fileID+"/info", nil, &wf); err != nil {
		return chatplatform.FileInfo{}, fmt.Errorf("mattermost: get file info %s: %w", fileID, err)
	}
	return chatplatform.FileInfo{ID: wf.ID, Name: wf.Name, MimeType: wf.MimeType, Size: wf.Size}, nil
}

func (c *Client) Formatter() chatplatform.Formatter { return chatutil.Mattermost{} }

func (c *Client) Events() <-chan chatplatform.MessageEvent     { return c.events }
func (c *Client) Reactions() <-chan chatplatform.ReactionEvent { return c.reactions }

// splitThreadID interprets a thread identifier the way the rest of this
// package expects: "<channelId>" for a brand new thread, or
// "<channelId>:<rootPostId>" once C10 has anchored the thread to a root
// post. model.Session.ThreadID is stored in this combined form so a single
// string round-trips through persistence.
func (c *Client) splitThreadID(threadID string) (channelID, rootID string) {
	if idx := strings.IndexByte(threadID, ':'); idx >= 0 {
		return threadID[:idx], threadID[idx+1:]
	}
	return threadID, ""
}

// do issues one REST call against the Mattermost API, encoding body (if
// non-nil) as JSON and decoding the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toPost(wp wirePost) chatplatform.Post {
	return chatplatform.Post{
		ID:        wp.ID,
		ThreadID:  wp.ChannelID + ":" + firstNonEmpty(wp.RootID, wp.ID),
		ChannelID: wp.ChannelID,
		UserID:    wp.UserID,
		Message:   wp.Message,
		CreatedAt: wp.CreateAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// wsURL derives the WebSocket endpoint from the configured HTTP(S) base URL.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v4/websocket"
	return u.String(), nil
}
