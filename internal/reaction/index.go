package reaction

import (
	"sync"

	"github.com/opencode-ai/chatbridge/internal/model"
)

// PostIndex maps a chat post id to the session that owns it. Entries are
// registered whenever C5/C7/C8/C4 create a post and are never removed; once
// a session has ended, a Lookup still returns its id, and the caller finds no
// live session for it.
type PostIndex struct {
	mu    sync.RWMutex
	posts map[string]model.SessionID
}

// NewPostIndex returns an empty index.
func NewPostIndex() *PostIndex {
	return &PostIndex{posts: make(map[string]model.SessionID)}
}

// Register associates postID with sessionID.
func (p *PostIndex) Register(postID string, sessionID model.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts[postID] = sessionID
}

// Lookup returns the session owning postID, if any.
func (p *PostIndex) Lookup(postID string) (model.SessionID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.posts[postID]
	return id, ok
}
