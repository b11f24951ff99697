package cmddispatch

import (
	"context"
	"time"

	"github.com/opencode-ai/chatbridge/internal/model"
)

// openMessageApproval implements spec.md §4.C9's "unrecognized messages
// from unauthorized users" rule: a message from a user not on
// SessionAllowedUsers opens a PendingMessageApproval instead of reaching
// the agent.
func (d *Dispatcher) openMessageApproval(ctx context.Context, session *model.Session, username, text string) error {
	message := "@" + username + " wants to send a message to this session:\n\n> " + text +
		"\n\n👍 allow once · ✅ invite + allow · 👎 deny"
	post, err := d.client.CreateInteractivePost(ctx, message, []string{"+1", "white_check_mark", "-1"}, session.ThreadID)
	if err != nil {
		return err
	}

	session.Lock()
	session.PendingMessageApproval = &model.PendingMessageApproval{
		PostID:   post.ID,
		Username: username,
		Text:     text,
		OpenedAt: time.Now(),
	}
	sessionID := session.SessionID
	session.Unlock()
	d.register(post.ID, sessionID)
	return nil
}

// ResolveMessageApproval is called by the reaction dispatch glue (C10) once
// an owner reacts to an open PendingMessageApproval post. allow sends the
// original text through; invite additionally adds the sender to
// SessionAllowedUsers first. Neither flag set means deny.
func (d *Dispatcher) ResolveMessageApproval(ctx context.Context, allow, invite bool) error {
	session := d.controller.Session()

	session.Lock()
	pending := session.PendingMessageApproval
	if pending == nil {
		session.Unlock()
		return nil
	}
	session.PendingMessageApproval = nil
	if invite {
		session.AllowUser(pending.Username)
		allow = true
	}
	session.Unlock()

	status := "Denied."
	if allow {
		status = "Allowed."
		d.controller.BeginProcessing()
		if adapter := d.controller.CurrentAdapter(); adapter != nil {
			if err := adapter.SendMessage(pending.Text); err != nil {
				return err
			}
		}
	}
	return d.client.UpdatePost(ctx, pending.PostID, "Message from @"+pending.Username+": "+status)
}
