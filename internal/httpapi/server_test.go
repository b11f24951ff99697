package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/bridge"
	"github.com/opencode-ai/chatbridge/internal/bridgesession"
	"github.com/opencode-ai/chatbridge/internal/chatplatform"
	"github.com/opencode-ai/chatbridge/internal/chatplatform/fake"
	"github.com/opencode-ai/chatbridge/internal/config"
	"github.com/opencode-ai/chatbridge/internal/model"
	"github.com/opencode-ai/chatbridge/internal/store"
)

// stubAdapter is a no-op AgentAdapter, mirroring internal/bridge's own test
// double — httpapi's tests only need to exercise the chat-to-session-creation
// path, never an actual agent subprocess.
type stubAdapter struct{}

func (s *stubAdapter) Start(ctx context.Context, spawn agentcli.Spawn) error { return nil }
func (s *stubAdapter) Events() <-chan agentcli.Event                        { return nil }
func (s *stubAdapter) Exit() <-chan agentcli.ExitInfo                       { return nil }
func (s *stubAdapter) SendMessage(text string) error                        { return nil }
func (s *stubAdapter) SendMessageBlocks(b []agentcli.ContentBlock) error     { return nil }
func (s *stubAdapter) SendToolResult(id string, payload any) error          { return nil }
func (s *stubAdapter) Interrupt() error                                     { return nil }
func (s *stubAdapter) Kill() error                                          { return nil }
func (s *stubAdapter) IsRunning() bool                                      { return true }

// testServer wires a Manager backed by a fake chat client and starts its
// message loop so InjectMessage exercises the real "@bridge <dir>"
// session-creation path — httpapi only has access to bridge.Manager's
// exported surface, the same as a real cmd/bridge binary would.
func testServer(t *testing.T, redact bool) (*Server, *bridge.Manager, *fake.Client) {
	t.Helper()
	client := fake.New("bot-id", "bridge")
	client.RegisterUser(chatplatform.User{ID: "alice", Username: "alice"})

	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)

	cfg := &config.Config{
		Platforms: []config.PlatformConfig{
			{PlatformID: "team", Kind: "fake", AllowedUsers: []string{"alice"}},
		},
		AgentCLI:        config.AgentCLIConfig{BinaryPath: "claude"},
		SessionDefaults: config.SessionDefaults{MaxSessions: 10, IdleLimit: config.Duration(time.Hour), Grace: config.Duration(time.Minute)},
	}
	mgr := bridge.New(cfg, map[string]chatplatform.Client{"team": client}, st)
	mgr.SetAdapterFactory(func(sessionID string) bridgesession.AgentAdapter { return &stubAdapter{} })

	hub := NewHub()
	mgr.SetEventSink(hub.Publish)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Run(ctx)

	srv := New(Config{Addr: ":0", RedactPaths: redact}, mgr, hub)
	return srv, mgr, client
}

// awaitSession polls Snapshot until a session with the given working
// directory shows up, or fails the test after a short timeout. Run's
// message loop goroutine needs at least one scheduling slice to react to
// an injected message.
func awaitSession(t *testing.T, mgr *bridge.Manager, workingDir string) bridge.SessionSummary {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range mgr.Snapshot(false) {
			if s.WorkingDir == workingDir {
				return s
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session with working dir %q never appeared", workingDir)
	return bridge.SessionSummary{}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := testServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestListSessionsReflectsLiveSession(t *testing.T) {
	srv, mgr, client := testServer(t, false)
	client.InjectMessage(
		chatplatform.Post{ID: "post-thread", Message: "@bridge /tmp/work"},
		&chatplatform.User{ID: "alice", Username: "alice"},
	)
	awaitSession(t, mgr, "/tmp/work")

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var sessions []bridge.SessionSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, "/tmp/work", sessions[0].WorkingDir)
	require.True(t, sessions[0].Live)
}

func TestListSessionsRedactsWorkingDir(t *testing.T) {
	srv, mgr, client := testServer(t, true)
	client.InjectMessage(
		chatplatform.Post{ID: "post-thread", Message: "@bridge /tmp/work"},
		&chatplatform.User{ID: "alice", Username: "alice"},
	)
	awaitSession(t, mgr, "/tmp/work")

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var sessions []bridge.SessionSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	require.NotEqual(t, "/tmp/work", sessions[0].WorkingDir)
	require.Contains(t, sessions[0].WorkingDir, "sha256:")
}

func TestSessionEventsReturnsNotFoundForUnknownSession(t *testing.T) {
	srv, _, _ := testServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/sessions/team:missing/events", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHubPublishDeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	id := model.SessionID("team:t1")
	ch, cancel := hub.Subscribe(id)
	defer cancel()

	hub.Publish(id, agentcli.Event{Type: "assistant", Raw: []byte(`{"ok":true}`)})

	select {
	case ev := <-ch:
		require.Equal(t, "assistant", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}
