// boardd is the rooms and replication server: it owns room membership,
// issues room tokens, keeps the canonical automerge document per room,
// and fans sync messages out to every connected client.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/boardkit/boardkit/pkg/export"
	"github.com/boardkit/boardkit/pkg/room"
	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
	"github.com/boardkit/boardkit/pkg/viz"
	"github.com/boardkit/boardkit/pkg/wire"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "localhost:8080", "the address to listen on")
	dbVar := flag.String("db", "boardd.sqlite3", "the sqlite database path")
	ttlVar := flag.Duration("token-ttl", time.Hour, "room token lifetime")
	flag.Parse()

	secret := []byte(os.Getenv("BOARDD_TOKEN_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate token secret: %w", err)
		}
		slog.Warn("BOARDD_TOKEN_SECRET not set, tokens will not survive a restart")
	}

	slog.Info("Opening database", "path", *dbVar)
	db, err := sql.Open("sqlite3", *dbVar)
	if err != nil {
		return err
	}
	defer db.Close()

	rooms := room.NewService(db)
	if err := rooms.Init(); err != nil {
		return err
	}

	s := &server{
		database: db,
		rooms:    rooms,
		issuer:   room.NewTokenIssuer(secret, *ttlVar),
	}
	if err := s.init(); err != nil {
		return err
	}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodPost).Path("/rooms").HandlerFunc(s.createRoom)
	r.Methods(http.MethodGet).Path("/rooms").HandlerFunc(s.myRooms)
	r.Methods(http.MethodPost).Path("/rooms/{room}/join").HandlerFunc(s.joinRoom)
	r.Methods(http.MethodGet).Path("/rooms/{room}/requests").HandlerFunc(s.pendingRequests)
	r.Methods(http.MethodPost).Path("/rooms/{room}/requests/{user}/accept").HandlerFunc(s.acceptRequest)
	r.Methods(http.MethodPost).Path("/rooms/{room}/requests/{user}/reject").HandlerFunc(s.rejectRequest)
	r.Methods(http.MethodGet).Path("/rooms/{room}/members").HandlerFunc(s.members)
	r.Methods(http.MethodPost).Path("/rooms/{room}/token").HandlerFunc(s.mintToken)
	r.Methods(http.MethodGet).Path("/rooms/{room}/latest").HandlerFunc(s.latestDoc)
	r.Methods(http.MethodGet).Path("/rooms/{room}/sync").HandlerFunc(s.syncRoom)
	r.Methods(http.MethodGet).Path("/rooms/{room}/presence").HandlerFunc(s.presence)
	r.Methods(http.MethodGet).Path("/rooms/{room}/shapes.json").HandlerFunc(s.exportJSON)
	r.Methods(http.MethodGet).Path("/rooms/{room}/export.png").HandlerFunc(s.exportPNG)
	r.Methods(http.MethodGet).Path("/rooms/{room}/export.pdf").HandlerFunc(s.exportPDF)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(time.Second * 5)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.backupDocs(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{Addr: *addrVar, Handler: r}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", *addrVar)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	_ = httpServer.Close()

	wg.Wait()

	s.backupDocs(context.Background())
	s.docs.Range(func(roomID, raw any) bool {
		rd := raw.(*roomDoc)
		if svgPath, err := viz.RenderToTemp(rd.doc); err != nil {
			slog.Error("failed to render history", "room", roomID, "err", err)
		} else {
			slog.Info("rendered history", "room", roomID, "path", "file://"+svgPath)
		}
		return true
	})

	return nil
}

// roomDoc is the canonical in-memory copy of one room's document plus the
// sync sessions currently attached to it.
type roomDoc struct {
	doc *automerge.Doc

	mu       sync.Mutex
	sessions map[*wire.Session]string
}

func (rd *roomDoc) addSession(s *wire.Session, user string) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.sessions[s] = user
}

func (rd *roomDoc) removeSession(s *wire.Session) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	delete(rd.sessions, s)
}

// wakeOthers nudges every other attached session so changes applied by one
// client propagate without waiting for the safety-net ticker.
func (rd *roomDoc) wakeOthers(from *wire.Session) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	for s := range rd.sessions {
		if s != from {
			s.Wake()
		}
	}
}

func (rd *roomDoc) users() []string {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	out := make([]string, 0, len(rd.sessions))
	for _, u := range rd.sessions {
		out = append(out, u)
	}
	return out
}

type server struct {
	database *sql.DB
	rooms    *room.Service
	issuer   *room.TokenIssuer
	docs     sync.Map // room id -> *roomDoc
}

func (s *server) init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS board_docs (
		room_id text not null primary key,
		content text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create board_docs table: %w", err)
	}

	res, err := s.database.Query(`SELECT room_id, content FROM board_docs`)
	if err != nil {
		return fmt.Errorf("failed to query docs: %w", err)
	}
	defer res.Close()
	for res.Next() {
		var roomID, rawSave string
		if err := res.Scan(&roomID, &rawSave); err != nil {
			return fmt.Errorf("failed to scan doc row: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(rawSave)
		if err != nil {
			return fmt.Errorf("failed to decode doc for %s: %w", roomID, err)
		}
		doc, err := automerge.Load(raw)
		if err != nil {
			return fmt.Errorf("failed to load doc for %s: %w", roomID, err)
		}
		s.docs.Store(roomID, &roomDoc{doc: doc, sessions: map[*wire.Session]string{}})
	}
	slog.Info("Ensured initial tables exist")
	return res.Err()
}

func (s *server) roomDoc(roomID string) *roomDoc {
	raw, _ := s.docs.LoadOrStore(roomID, &roomDoc{doc: automerge.New(), sessions: map[*wire.Session]string{}})
	return raw.(*roomDoc)
}

func (s *server) backupDocs(ctx context.Context) {
	s.docs.Range(func(roomID, raw any) bool {
		rd := raw.(*roomDoc)
		newContent := base64.StdEncoding.EncodeToString(rd.doc.Save())
		if res, err := s.database.ExecContext(ctx,
			`INSERT INTO board_docs (room_id, content) VALUES (?, ?)
			ON CONFLICT(room_id) DO UPDATE SET content = excluded.content WHERE content != excluded.content`,
			roomID, newContent,
		); err != nil {
			slog.Error("failed to backup doc in database", "room", roomID, "err", err)
		} else if r, _ := res.RowsAffected(); r > 0 {
			slog.Info("backed up", "room", roomID, "heads", rd.doc.Heads())
		}
		return true
	})
}

// requireUser reads the authenticated identity established by the fronting
// proxy. Authentication itself is out of scope here.
func requireUser(writer http.ResponseWriter, request *http.Request) (string, bool) {
	user := request.Header.Get("X-User")
	if user == "" {
		writeError(writer, http.StatusUnauthorized, "missing identity")
		return "", false
	}
	return user, true
}

// requireToken resolves the room and verifies the session token in the
// query string, returning the canonical room and the admitted user.
func (s *server) requireToken(writer http.ResponseWriter, request *http.Request) (room.Room, string, bool) {
	r, err := s.rooms.Lookup(request.Context(), mux.Vars(request)["room"])
	if err != nil {
		s.writeServiceError(writer, err)
		return room.Room{}, "", false
	}
	user, err := s.issuer.Verify(request.URL.Query().Get("token"), r.ID, time.Now())
	if err != nil {
		writeError(writer, http.StatusForbidden, "invalid or expired token")
		return room.Room{}, "", false
	}
	return r, user, true
}

func (s *server) writeServiceError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrNotFound):
		writeError(writer, http.StatusNotFound, "room not found")
	case errors.Is(err, room.ErrNotAllowed):
		writeError(writer, http.StatusForbidden, "not allowed")
	case errors.Is(err, room.ErrNameTaken):
		writeError(writer, http.StatusConflict, "room name already exists")
	case errors.Is(err, room.ErrBadName):
		writeError(writer, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
	}
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}

func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func (s *server) createRoom(writer http.ResponseWriter, request *http.Request) {
	user, ok := requireUser(writer, request)
	if !ok {
		return
	}
	var body struct {
		Name       string          `json:"name"`
		Visibility room.Visibility `json:"visibility"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Visibility == "" {
		body.Visibility = room.Public
	}
	r, err := s.rooms.Create(request.Context(), body.Name, body.Visibility, user)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusCreated, r)
}

func (s *server) myRooms(writer http.ResponseWriter, request *http.Request) {
	user, ok := requireUser(writer, request)
	if !ok {
		return
	}
	rooms, err := s.rooms.RoomsFor(request.Context(), user)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, rooms)
}

func (s *server) joinRoom(writer http.ResponseWriter, request *http.Request) {
	user, ok := requireUser(writer, request)
	if !ok {
		return
	}
	r, err := s.rooms.Lookup(request.Context(), mux.Vars(request)["room"])
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	m, err := s.rooms.RequestJoin(request.Context(), r.ID, user)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, m)
}

func (s *server) pendingRequests(writer http.ResponseWriter, request *http.Request) {
	user, ok := requireUser(writer, request)
	if !ok {
		return
	}
	r, err := s.rooms.Lookup(request.Context(), mux.Vars(request)["room"])
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	pending, err := s.rooms.PendingRequests(request.Context(), r.ID, user)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, pending)
}

func (s *server) acceptRequest(writer http.ResponseWriter, request *http.Request) {
	s.respond(writer, request, true)
}

func (s *server) rejectRequest(writer http.ResponseWriter, request *http.Request) {
	s.respond(writer, request, false)
}

func (s *server) respond(writer http.ResponseWriter, request *http.Request, accept bool) {
	user, ok := requireUser(writer, request)
	if !ok {
		return
	}
	vars := mux.Vars(request)
	r, err := s.rooms.Lookup(request.Context(), vars["room"])
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	if err := s.rooms.Respond(request.Context(), r.ID, vars["user"], user, accept); err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (s *server) members(writer http.ResponseWriter, request *http.Request) {
	if _, ok := requireUser(writer, request); !ok {
		return
	}
	r, err := s.rooms.Lookup(request.Context(), mux.Vars(request)["room"])
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	members, err := s.rooms.Members(request.Context(), r.ID)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, members)
}

func (s *server) mintToken(writer http.ResponseWriter, request *http.Request) {
	user, ok := requireUser(writer, request)
	if !ok {
		return
	}
	r, err := s.rooms.Lookup(request.Context(), mux.Vars(request)["room"])
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	if err := s.rooms.Authorize(request.Context(), r.ID, user); err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"token": s.issuer.Mint(user, r.ID, time.Now())})
}

func (s *server) latestDoc(writer http.ResponseWriter, request *http.Request) {
	r, _, ok := s.requireToken(writer, request)
	if !ok {
		return
	}
	rd := s.roomDoc(r.ID)
	fork, err := rd.doc.Fork()
	if err != nil {
		slog.Error("failed to fork", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("Content-Type", "application/octet-stream")
	if _, err := writer.Write(fork.Save()); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *server) syncRoom(writer http.ResponseWriter, request *http.Request) {
	r, user, ok := s.requireToken(writer, request)
	if !ok {
		return
	}
	rd := s.roomDoc(r.ID)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	syncState := automerge.NewSyncState(rd.doc)
	var session *wire.Session
	session = wire.NewSession(conn, syncState, func() { rd.wakeOthers(session) }, slog.Default())
	rd.addSession(session, user)
	defer rd.removeSession(session)

	slog.Info("session started", "room", r.ID, "user", user)
	if err := session.Run(request.Context()); err != nil {
		slog.Error("failed to sync", "room", r.ID, "err", err)
	}
	slog.Info("session ended", "room", r.ID, "user", user)
}

func (s *server) presence(writer http.ResponseWriter, request *http.Request) {
	r, _, ok := s.requireToken(writer, request)
	if !ok {
		return
	}
	writeJSON(writer, http.StatusOK, map[string]any{"users": s.roomDoc(r.ID).users()})
}

// roomShapes decodes the current shape sequence from a fork of the room
// doc, leaving the canonical doc untouched.
func (s *server) roomShapes(roomID string) ([]shape.Shape, error) {
	rd := s.roomDoc(roomID)
	fork, err := rd.doc.Fork()
	if err != nil {
		return nil, fmt.Errorf("failed to fork doc: %w", err)
	}
	list, err := store.NewLiveList(fork, slog.Default())
	if err != nil {
		return nil, err
	}
	return list.Snapshot(), nil
}

func (s *server) exportJSON(writer http.ResponseWriter, request *http.Request) {
	r, _, ok := s.requireToken(writer, request)
	if !ok {
		return
	}
	shapes, err := s.roomShapes(r.ID)
	if err != nil {
		slog.Error("failed to read shapes", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	raw, err := shape.MarshalJSON(shapes)
	if err != nil {
		slog.Error("failed to marshal shapes", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write(raw)
}

func (s *server) exportPNG(writer http.ResponseWriter, request *http.Request) {
	r, _, ok := s.requireToken(writer, request)
	if !ok {
		return
	}
	shapes, err := s.roomShapes(r.ID)
	if err != nil {
		slog.Error("failed to read shapes", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "image/png")
	if err := export.PNG(writer, shapes, export.PNGOptions{}); err != nil {
		slog.Error("failed to render png", "err", err)
	}
}

func (s *server) exportPDF(writer http.ResponseWriter, request *http.Request) {
	r, _, ok := s.requireToken(writer, request)
	if !ok {
		return
	}
	shapes, err := s.roomShapes(r.ID)
	if err != nil {
		slog.Error("failed to read shapes", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/pdf")
	if err := export.PDF(writer, shapes); err != nil {
		slog.Error("failed to render pdf", "err", err)
	}
}
