package mattermost

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opencode-ai/chatbridge/internal/chatplatform"
)

// dialWebSocket opens the Mattermost event socket and completes its auth
// handshake: the upgrade request carries no Authorization header, so the
// first frame sent must be an "authentication_challenge" action carrying
// the bot token.
func (c *Client) dialWebSocket(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.wsURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	challenge := wsAuthChallenge{
		Seq:    1,
		Action: "authentication_challenge",
		Data:   map[string]any{"token": c.token},
	}
	if err := conn.WriteJSON(challenge); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// readPump decodes every frame off conn and translates "posted" and
// "reaction_added" events into chatplatform.MessageEvent/ReactionEvent,
// reconnecting with backoff if the connection drops before ctx is canceled
// — matching the teacher's one-goroutine-per-live-connection idiom used for
// subprocess event pumps.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("websocket read failed, reconnecting")
			conn.Close()
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			newConn, dialErr := c.dialWebSocket(ctx)
			if dialErr != nil {
				c.log.Warn().Err(dialErr).Msg("websocket reconnect failed")
				continue
			}
			conn = newConn
			backoff = time.Second
			continue
		}
		backoff = time.Second
		c.handleEnvelope(env)
	}
}

func (c *Client) handleEnvelope(env wsEnvelope) {
	switch env.Event {
	case wsEventPosted:
		c.handlePosted(env.Data)
	case wsEventReactionAdded:
		c.handleReactionAdded(env.Data)
	}
}

// handlePosted decodes the "post" field, which Mattermost embeds as a
// JSON-encoded string rather than a nested object, and resolves the
// author's identity before publishing to c.events.
func (c *Client) handlePosted(data map[string]any) {
	raw, _ := data["post"].(string)
	if raw == "" {
		return
	}
	var wp wirePost
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		c.log.Warn().Err(err).Msg("skipping malformed posted event")
		return
	}

	c.mu.RLock()
	botID := c.bot.ID
	c.mu.RUnlock()
	if wp.UserID == botID {
		return
	}

	var user *chatplatform.User
	if u, err := c.GetUser(context.Background(), wp.UserID); err == nil {
		user = &u
	}
	c.events <- chatplatform.MessageEvent{Post: toPost(wp), User: user}
}

func (c *Client) handleReactionAdded(data map[string]any) {
	raw, _ := data["reaction"].(string)
	if raw == "" {
		return
	}
	var wr wireReaction
	if err := json.Unmarshal([]byte(raw), &wr); err != nil {
		c.log.Warn().Err(err).Msg("skipping malformed reaction_added event")
		return
	}

	c.mu.RLock()
	botID := c.bot.ID
	c.mu.RUnlock()
	if wr.UserID == botID {
		return
	}

	var user *chatplatform.User
	if u, err := c.GetUser(context.Background(), wr.UserID); err == nil {
		user = &u
	}
	c.reactions <- chatplatform.ReactionEvent{
		Reaction: chatplatform.Reaction{PostID: wr.PostID, UserID: wr.UserID, EmojiName: wr.EmojiName},
		User:     user,
	}
}
