package board

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
	"github.com/boardkit/boardkit/pkg/wire"
)

// SessionConfig describes how to join a room's replication session.
type SessionConfig struct {
	// BaseURL is the server base, e.g. "http://localhost:8080".
	BaseURL string
	// Room is the room id.
	Room string
	// User is the authenticated identity presented when fetching a token.
	User string
	// Token is a pre-issued room token. When empty, Dial fetches one.
	Token string
}

// Session is a live replication session: a Board whose list is an
// automerge document continuously synced with the room's server copy.
// The connection is re-dialed with backoff until the session is closed.
type Session struct {
	Board *Board

	list   *store.LiveList
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// Dial joins a room: fetches a token if needed, bootstraps the document
// from the room's latest snapshot, and starts the background sync pump.
// Connection establishment failures surface here; after that, transient
// failures are retried internally.
func Dial(ctx context.Context, cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}

	token := cfg.Token
	if token == "" {
		if token, err = FetchToken(ctx, base, cfg.Room, cfg.User); err != nil {
			return nil, err
		}
	}

	doc, err := fetchLatest(ctx, base, cfg.Room, token)
	if err != nil {
		return nil, err
	}
	_ = doc.SetActorID(hex.EncodeToString([]byte(uuid.NewString()[:16])))

	list, err := store.NewLiveList(doc, logger)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Board:  New(list, logger),
		list:   list,
		cancel: cancel,
		logger: logger,
	}

	syncURL := base.JoinPath("rooms", cfg.Room, "sync")
	syncURL.Scheme = wsScheme(base.Scheme)
	syncURL.RawQuery = url.Values{"token": {token}}.Encode()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.syncContinuously(runCtx, syncURL.String())
	}()
	return s, nil
}

// Close stops the sync pump and waits for it to exit. Pending local
// changes already committed to the document stay in the document; callers
// wanting them replicated flush before closing.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// Save returns the opaque serialized document, e.g. for a local backup.
func (s *Session) Save() []byte { return s.list.Doc().Save() }

func (s *Session) syncContinuously(ctx context.Context, syncURL string) {
	for {
		if err := s.syncOnce(ctx, syncURL); err != nil {
			s.logger.Warn("sync connection lost", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Session) syncOnce(ctx context.Context, syncURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, syncURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	session := wire.NewSession(conn, automerge.NewSyncState(s.list.Doc()), s.list.RemoteApplied, s.logger)
	// Local commits must nudge the write pump.
	unsubscribe := s.list.Subscribe(func([]shape.Shape) { session.Wake() })
	defer unsubscribe()

	return session.Run(ctx)
}

// FetchToken asks the room service for a scoped token for (user, room).
// The token contents are opaque to the client.
func FetchToken(ctx context.Context, base *url.URL, room, user string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.JoinPath("rooms", room, "token").String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("X-User", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return "", fmt.Errorf("not allowed to join room %s", room)
	default:
		return "", fmt.Errorf("unexpected status %d fetching token", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return body.Token, nil
}

func fetchLatest(ctx context.Context, base *url.URL, room, token string) (*automerge.Doc, error) {
	u := base.JoinPath("rooms", room, "latest")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot body: %w", err)
		}
		doc, err := automerge.Load(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		return doc, nil
	case http.StatusNoContent, http.StatusNotFound:
		return automerge.New(), nil
	default:
		return nil, fmt.Errorf("unexpected status %d fetching snapshot", resp.StatusCode)
	}
}

func wsScheme(httpScheme string) string {
	if strings.EqualFold(httpScheme, "https") {
		return "wss"
	}
	return "ws"
}
