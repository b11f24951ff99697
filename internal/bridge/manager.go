package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/cmddispatch"
	"github.com/opencode-ai/chatbridge/internal/config"
	"github.com/opencode-ai/chatbridge/internal/eventinterp"
	"github.com/opencode-ai/chatbridge/internal/logging"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/poststream"
	"github.com/opencode-ai/chatbridge/internal/reaction"
	"github.com/opencode-ai/chatbridge/internal/store"
	"github.com/opencode-ai/chatbridge/internal/vcsworktree"
)

// platformRuntime bundles one configured platform's live client with the
// pieces that depend on it: its admin allow-list and its reaction router.
type platformRuntime struct {
	platformID string
	client     chatplatform.Client
	adminUsers map[string]bool
	stream     *poststream.Engine
	router     *reaction.Router
}

// sessionBundle is everything C10 keeps per live Session: the state
// machine, the command dispatcher, the event interpreter, and the event
// pump goroutine's cancel func.
type sessionBundle struct {
	platformID  string
	controller  *bridgesession.Controller
	dispatcher  *cmddispatch.Dispatcher
	interpreter *eventinterp.Interpreter
	cancelPump  context.CancelFunc
}

// Manager is spec.md §4.C10's session manager: the single owner of
// `sessions`, `postIndex`, `platforms`, the persistence store, and the
// shutdown flag.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	worktrees *vcsworktree.Manager
	postIndex *reaction.PostIndex
	log       zerolog.Logger

	// adapterFactory constructs the AgentAdapter for each new Controller.
	// Defaults to real subprocesses; tests override it with a stub.
	adapterFactory bridgesession.AdapterFactory

	mu           sync.Mutex
	sessions     map[model.SessionID]*sessionBundle
	platforms    map[string]*platformRuntime
	shuttingDown bool
	eventSink    func(id model.SessionID, ev agentcli.Event)
}

// New builds a Manager from configuration and one client per configured
// platform; Run connects each client.
func New(cfg *config.Config, clients map[string]chatplatform.Client, st *store.Store) *Manager {
	m := &Manager{
		cfg:            cfg,
		store:          st,
		worktrees:      vcsworktree.NewManager(cfg.Worktree.BaseDir),
		postIndex:      reaction.NewPostIndex(),
		sessions:       make(map[model.SessionID]*sessionBundle),
		platforms:      make(map[string]*platformRuntime),
		log:            logging.Component("bridge"),
		adapterFactory: bridgesession.NewRealAdapterFactory(),
	}
	handler := &reactionHandler{mgr: m}
	for _, pc := range cfg.Platforms {
		client, ok := clients[pc.PlatformID]
		if !ok {
			continue
		}
		allowed := make(map[string]bool, len(pc.AllowedUsers))
		for _, u := range pc.AllowedUsers {
			allowed[u] = true
		}
		pr := &platformRuntime{
			platformID: pc.PlatformID,
			client:     client,
			adminUsers: allowed,
			stream:     poststream.New(client),
		}
		pr.router = reaction.New(pc.PlatformID, client.BotUser().ID, m.postIndex, st, m, handler)
		m.platforms[pc.PlatformID] = pr
	}
	return m
}

// SetAdapterFactory overrides how every subsequently started session's
// AgentAdapter is constructed. New defaults to spawning real subprocesses
// via bridgesession.NewRealAdapterFactory; embedders wiring a non-default
// transport (or tests substituting a stub) call this before Run.
func (m *Manager) SetAdapterFactory(f bridgesession.AdapterFactory) {
	m.mu.Lock()
	m.adapterFactory = f
	m.mu.Unlock()
}

// platformConfig returns the configured PlatformConfig for platformID, or a
// zero value if unconfigured (should not happen for a platform with a live
// platformRuntime).
func (m *Manager) platformConfig(platformID string) config.PlatformConfig {
	for _, pc := range m.cfg.Platforms {
		if pc.PlatformID == platformID {
			return pc
		}
	}
	return config.PlatformConfig{}
}

// Get implements reaction.SessionLookup.
func (m *Manager) Get(id model.SessionID) (*model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return b.controller.Session(), true
}

// Resume implements reaction.SessionLookup: a reaction landed on a
// lifecycle/session-start post belonging to a session that aged out of
// memory. Bring it back with a fresh --resume attempt.
func (m *Manager) Resume(persisted *model.PersistedSession) (*model.Session, bool) {
	pr, ok := m.platforms[persisted.PlatformID]
	if !ok {
		return nil, false
	}
	session := model.FromPersisted(persisted)
	bundle, err := m.startSession(context.Background(), pr, session, true)
	if err != nil {
		m.log.Warn().Err(err).Str("sessionId", string(session.SessionID)).Msg("resume-on-reaction failed")
		return nil, false
	}
	m.mu.Lock()
	m.sessions[session.SessionID] = bundle
	m.mu.Unlock()
	return session, true
}

// Run connects every configured platform, launches its message/reaction
// loops, resumes any sessions left in the store from a prior run, and
// blocks until ctx is canceled, at which point it shuts down gracefully.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, pr := range m.platforms {
		pr := pr
		g.Go(func() error {
			if err := pr.client.Connect(gctx); err != nil {
				return fmt.Errorf("bridge: connect platform %s: %w", pr.platformID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.resumeFromStore(ctx)

	for _, pr := range m.platforms {
		go m.messageLoop(ctx, pr)
		go m.reactionLoop(ctx, pr)
	}

	go m.idleSweeper(ctx)

	<-ctx.Done()
	return m.Shutdown(context.Background())
}

func (m *Manager) resumeFromStore(ctx context.Context) {
	for id, persisted := range m.store.Load() {
		pr, ok := m.platforms[persisted.PlatformID]
		if !ok {
			m.log.Warn().Str("sessionId", string(id)).Msg("persisted session references unconfigured platform, dropping")
			continue
		}
		session := model.FromPersisted(persisted)
		bundle, err := m.startSession(ctx, pr, session, true)
		if err != nil {
			m.log.Warn().Err(err).Str("sessionId", string(id)).Msg("failed to resume session at startup")
			continue
		}
		m.mu.Lock()
		m.sessions[id] = bundle
		m.mu.Unlock()
	}
}

func (m *Manager) messageLoop(ctx context.Context, pr *platformRuntime) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pr.client.Events():
			if !ok {
				return
			}
			m.handleMessage(ctx, pr, ev)
		}
	}
}

func (m *Manager) reactionLoop(ctx context.Context, pr *platformRuntime) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pr.client.Reactions():
			if !ok {
				return
			}
			pr.router.Route(ctx, ev)
		}
	}
}

func (m *Manager) idleSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweepIdle(ctx, now)
		}
	}
}

func (m *Manager) sweepIdle(ctx context.Context, now time.Time) {
	m.mu.Lock()
	bundles := make([]*sessionBundle, 0, len(m.sessions))
	for _, b := range m.sessions {
		bundles = append(bundles, b)
	}
	m.mu.Unlock()

	for _, b := range bundles {
		switch b.controller.CheckIdle(now) {
		case bridgesession.IdleActionWarn:
			session := b.controller.Session()
			m.postToSession(ctx, b.platformID, session, "This session has been idle and will end soon unless there's activity.")
		case bridgesession.IdleActionEnd:
			if err := b.controller.Kill(bridgesession.EndReasonTimeout); err != nil {
				m.log.Warn().Err(err).Msg("error killing idle session")
			}
		}
	}
}

func (m *Manager) postToSession(ctx context.Context, platformID string, session *model.Session, message string) {
	pr, ok := m.platforms[platformID]
	if !ok {
		return
	}
	if _, err := pr.client.CreatePost(ctx, message, session.ThreadID); err != nil {
		m.log.Warn().Err(err).Msg("failed to post to session thread")
	}
}

// Shutdown stops accepting new work, flushes and persists every live
// session, and disconnects every platform client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.shuttingDown = true
	bundles := make(map[model.SessionID]*sessionBundle, len(m.sessions))
	for k, v := range m.sessions {
		bundles[k] = v
	}
	m.mu.Unlock()

	for id, b := range bundles {
		session := b.controller.Session()
		if err := b.controller.Flush(ctx); err != nil {
			m.log.Warn().Err(err).Str("sessionId", string(id)).Msg("flush during shutdown failed")
		}
		if err := b.controller.Kill(bridgesession.EndReasonShutdown); err != nil {
			m.log.Warn().Err(err).Str("sessionId", string(id)).Msg("kill during shutdown failed")
		}
		session.Lock()
		persisted := session.ToPersisted()
		session.Unlock()
		if err := m.store.Save(id, persisted); err != nil {
			m.log.Warn().Err(err).Str("sessionId", string(id)).Msg("persist during shutdown failed")
		}
		b.cancelPump()
	}

	for _, pr := range m.platforms {
		if err := pr.client.Disconnect(); err != nil {
			m.log.Warn().Err(err).Str("platformId", pr.platformID).Msg("disconnect failed")
		}
	}
	return nil
}
