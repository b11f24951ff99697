// Package store implements the bridge's durable session persistence: a
// single schema-versioned JSON document, written atomically by
// write-temp-then-rename, adapted from the teacher's per-key file storage
// (internal/storage in the opencode reference) down to the single-document
// contract the specification requires.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// CurrentVersion is the schema version this store writes.
const CurrentVersion = 2

// Document is the on-disk shape: {version, sessions, stickyPostIds}.
type Document struct {
	Version       int                                    `json:"version"`
	Sessions      map[string]*model.PersistedSession      `json:"sessions"`
	StickyPostIDs map[string]string                       `json:"stickyPostIds"`
}

func newEmptyDocument() *Document {
	return &Document{
		Version:       CurrentVersion,
		Sessions:      make(map[string]*model.PersistedSession),
		StickyPostIDs: make(map[string]string),
	}
}

// Store guards a single JSON document on disk with an in-memory mirror.
type Store struct {
	path string
	mu   sync.Mutex
	doc  *Document
}

// Open loads (or initializes) the store at path. A missing or corrupt file
// yields an empty store rather than an error — the file itself is left
// untouched until the next Save, so an unreadable file is never
// destructively overwritten before a human can recover it.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	doc, err := loadDocument(path)
	if err != nil {
		logging.Component("store").Warn().Err(err).Str("path", path).
			Msg("persisted session file unreadable, starting from an empty store")
		doc = newEmptyDocument()
	}
	s.doc = doc
	return s, nil
}

func loadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newEmptyDocument(), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return newEmptyDocument(), nil
	}

	var raw struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("corrupt session store: %w", err)
	}

	switch raw.Version {
	case CurrentVersion:
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc.Sessions == nil {
			doc.Sessions = make(map[string]*model.PersistedSession)
		}
		if doc.StickyPostIDs == nil {
			doc.StickyPostIDs = make(map[string]string)
		}
		return &doc, nil
	case 1:
		return migrateV1(data)
	default:
		// Unknown future version: treat as empty rather than guess at its
		// shape, but never write until Save is explicitly called, so the
		// original file survives for manual recovery.
		logging.Component("store").Warn().Int("version", raw.Version).
			Msg("session store has no migration path for this version, treating as empty")
		return newEmptyDocument(), nil
	}
}

// v1Document is the pre-multi-platform schema: sessions were keyed by bare
// threadId and there was no platformId concept.
type v1Document struct {
	Version  int                                `json:"version"`
	Sessions map[string]*model.PersistedSession `json:"sessions"`
}

func migrateV1(data []byte) (*Document, error) {
	var old v1Document
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}

	doc := newEmptyDocument()
	for threadID, sess := range old.Sessions {
		if sess.PlatformID == "" {
			sess.PlatformID = "default"
		}
		sess.ThreadID = threadID
		sess.SessionID = model.MakeSessionID(sess.PlatformID, threadID)
		doc.Sessions[string(sess.SessionID)] = sess
	}
	logging.Component("store").Info().Int("count", len(doc.Sessions)).
		Msg("migrated session store from v1 to v2")
	return doc, nil
}

// Save atomically persists a single session's projection.
func (s *Store) Save(sessionID model.SessionID, persisted *model.PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Sessions[string(sessionID)] = persisted
	return s.flushLocked()
}

// Remove deletes a session's entry.
func (s *Store) Remove(sessionID model.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Sessions[string(sessionID)]; !ok {
		return nil
	}
	delete(s.doc.Sessions, string(sessionID))
	return s.flushLocked()
}

// Load returns a snapshot of every persisted session.
func (s *Store) Load() map[model.SessionID]*model.PersistedSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.SessionID]*model.PersistedSession, len(s.doc.Sessions))
	for k, v := range s.doc.Sessions {
		out[model.SessionID(k)] = v
	}
	return out
}

// CleanStale removes entries whose LastActivityAt predates maxAge and
// returns their ids.
func (s *Store) CleanStale(maxAge time.Duration) ([]model.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var removed []model.SessionID
	for k, v := range s.doc.Sessions {
		if v.LastActivityAt.Before(cutoff) {
			removed = append(removed, model.SessionID(k))
			delete(s.doc.Sessions, k)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return removed, s.flushLocked()
}

// FindByPostID scans persisted sessions for one whose lifecycle or
// session-start anchor post matches postID, restricted to a platform. Used
// to resume a timed-out session via a reaction arriving on an aged-out
// message (see the reaction router's fallback path).
func (s *Store) FindByPostID(platformID, postID string) *model.PersistedSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.doc.Sessions {
		if v.PlatformID != platformID {
			continue
		}
		if v.LifecyclePostID == postID || v.SessionStartPostID == postID {
			return v
		}
	}
	return nil
}

// StickyPost returns the sticky channel-summary post id for a platform.
func (s *Store) StickyPost(platformID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.doc.StickyPostIDs[platformID]
	return id, ok
}

// SetStickyPost sets or clears the sticky post id for a platform.
func (s *Store) SetStickyPost(platformID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if postID == "" {
		delete(s.doc.StickyPostIDs, platformID)
	} else {
		s.doc.StickyPostIDs[platformID] = postID
	}
	return s.flushLocked()
}

// flushLocked writes the whole document to a sibling temp file, then
// renames it into place — the rename is atomic on the same filesystem, so
// readers never observe a partially-written document.
func (s *Store) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp session store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename session store into place: %w", err)
	}
	return nil
}
