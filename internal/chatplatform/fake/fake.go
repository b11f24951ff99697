// Package fake provides an in-memory chatplatform.Client for tests: no
// network, deterministic post ids, and injectable incoming events.
package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatutil"
)

// Client is a test double implementing chatplatform.Client entirely
// in-memory. Safe for concurrent use.
type Client struct {
	bot chatplatform.User

	mu    sync.Mutex
	posts map[string]chatplatform.Post
	files map[string][]byte
	users map[string]chatplatform.User
	seq   int64

	events    chan chatplatform.MessageEvent
	reactions chan chatplatform.ReactionEvent

	// Sent records every create/update/delete/reaction call for assertions.
	Sent []string
}

// New returns a fake client with the given bot identity.
func New(botID, botUsername string) *Client {
	return &Client{
		bot:       chatplatform.User{ID: botID, Username: botUsername, IsBot: true},
		posts:     make(map[string]chatplatform.Post),
		files:     make(map[string][]byte),
		users:     make(map[string]chatplatform.User),
		events:    make(chan chatplatform.MessageEvent, 64),
		reactions: make(chan chatplatform.ReactionEvent, 64),
	}
}

func (c *Client) nextID() string {
	n := atomic.AddInt64(&c.seq, 1)
	return fmt.Sprintf("post-%d", n)
}

func (c *Client) Connect(ctx context.Context) error { return nil }
func (c *Client) Disconnect() error {
	close(c.events)
	close(c.reactions)
	return nil
}

func (c *Client) BotUser() chatplatform.User { return c.bot }

func (c *Client) GetUser(ctx context.Context, userID string) (chatplatform.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.users[userID]; ok {
		return u, nil
	}
	return chatplatform.User{}, fmt.Errorf("fake: unknown user %q", userID)
}

func (c *Client) IsUserAllowed(username string, allowed map[string]bool) bool {
	return allowed[username]
}

func (c *Client) BotName() string { return c.bot.Username }

func (c *Client) CreatePost(ctx context.Context, message, threadID string) (chatplatform.Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := chatplatform.Post{ID: c.nextID(), ThreadID: threadID, UserID: c.bot.ID, Message: message}
	c.posts[p.ID] = p
	c.Sent = append(c.Sent, "create:"+p.ID)
	return p, nil
}

func (c *Client) UpdatePost(ctx context.Context, postID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.posts[postID]
	if !ok {
		return fmt.Errorf("fake: no such post %q", postID)
	}
	p.Message = message
	c.posts[postID] = p
	c.Sent = append(c.Sent, "update:"+postID)
	return nil
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.posts, postID)
	c.Sent = append(c.Sent, "delete:"+postID)
	return nil
}

func (c *Client) CreateInteractivePost(ctx context.Context, message string, emojiNames []string, threadID string) (chatplatform.Post, error) {
	p, err := c.CreatePost(ctx, message, threadID)
	if err != nil {
		return p, err
	}
	for _, e := range emojiNames {
		_ = c.AddReaction(ctx, p.ID, e)
	}
	return p, nil
}

func (c *Client) GetPost(ctx context.Context, postID string) (chatplatform.Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.posts[postID]
	if !ok {
		return chatplatform.Post{}, fmt.Errorf("fake: no such post %q", postID)
	}
	return p, nil
}

func (c *Client) GetThreadHistory(ctx context.Context, threadID string, opts chatplatform.ThreadHistoryOptions) ([]chatplatform.Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chatplatform.Post
	for _, p := range c.posts {
		if p.ThreadID != threadID {
			continue
		}
		if opts.ExcludeBotMessages && p.UserID == c.bot.ID {
			continue
		}
		out = append(out, p)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (c *Client) AddReaction(ctx context.Context, postID, emojiName string) error {
	c.mu.Lock()
	c.Sent = append(c.Sent, "react:"+postID+":"+emojiName)
	c.mu.Unlock()
	return nil
}

func (c *Client) SendTyping(ctx context.Context, threadID string) error { return nil }

func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.files[fileID]
	if !ok {
		return nil, fmt.Errorf("fake: no such file %q", fileID)
	}
	return b, nil
}

func (c *Client) GetFileInfo(ctx context.Context, fileID string) (chatplatform.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.files[fileID]
	if !ok {
		return chatplatform.FileInfo{}, fmt.Errorf("fake: no such file %q", fileID)
	}
	return chatplatform.FileInfo{ID: fileID, Size: int64(len(b))}, nil
}

func (c *Client) Formatter() chatplatform.Formatter { return chatutil.Mattermost{} }

func (c *Client) Events() <-chan chatplatform.MessageEvent    { return c.events }
func (c *Client) Reactions() <-chan chatplatform.ReactionEvent { return c.reactions }

// InjectMessage pushes a synthetic incoming message, and records the post so
// later CreatePost/GetPost-style lookups are consistent with the injected
// feed (tests commonly inject a user message then assert the bot's reply).
func (c *Client) InjectMessage(post chatplatform.Post, user *chatplatform.User) {
	c.mu.Lock()
	c.posts[post.ID] = post
	if user != nil {
		c.users[user.ID] = *user
	}
	c.mu.Unlock()
	c.events <- chatplatform.MessageEvent{Post: post, User: user}
}

// InjectReaction pushes a synthetic incoming reaction.
func (c *Client) InjectReaction(reaction chatplatform.Reaction, user *chatplatform.User) {
	c.mu.Lock()
	if user != nil {
		c.users[user.ID] = *user
	}
	c.mu.Unlock()
	c.reactions <- chatplatform.ReactionEvent{Reaction: reaction, User: user}
}

// RegisterUser makes GetUser/IsUserAllowed resolve a known identity.
func (c *Client) RegisterUser(u chatplatform.User) {
	c.mu.Lock()
	c.users[u.ID] = u
	c.mu.Unlock()
}

// PostMessage is a convenience accessor for assertions in tests.
func (c *Client) PostMessage(postID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.posts[postID]
	return p.Message, ok
}

// SentSnapshot returns a copy of the recorded call log, safe to read while
// another goroutine may still be calling into the client.
func (c *Client) SentSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Sent))
	copy(out, c.Sent)
	return out
}
