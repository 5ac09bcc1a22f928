// Package room owns room membership: creation, join requests, owner
// moderation, and the authorization rule the replication server applies
// before admitting a client into a room's session.
package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	Public  Visibility = "PUBLIC"
	Private Visibility = "PRIVATE"
)

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleMember Role = "MEMBER"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

var (
	ErrNotFound   = errors.New("room not found")
	ErrNameTaken  = errors.New("room name already exists")
	ErrBadName    = errors.New("name must be 3-30 letters, numbers or underscores")
	ErrNotAllowed = errors.New("not allowed")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

type Room struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	OwnerID    string     `json:"ownerId"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type Member struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Status Status `json:"status"`
}

type Service struct {
	database *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{database: database}
}

// Init creates the membership tables.
func (s *Service) Init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS rooms (
		id text not null primary key,
		name text not null unique,
		visibility text not null,
		owner_id text not null,
		created_at timestamp not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS room_members (
		room_id text not null,
		user_id text not null,
		role text not null,
		status text not null,
		primary key (room_id, user_id)
		)`,
	); err != nil {
		return fmt.Errorf("failed to create room_members table: %w", err)
	}
	return nil
}

// Create inserts a room and its owner membership in one transaction. The
// name is normalized to lower case and must be unique.
func (s *Service) Create(ctx context.Context, name string, visibility Visibility, ownerID string) (Room, error) {
	if !namePattern.MatchString(name) {
		return Room{}, ErrBadName
	}
	if visibility != Public && visibility != Private {
		return Room{}, fmt.Errorf("unknown visibility %q", visibility)
	}
	r := Room{
		ID:         uuid.NewString(),
		Name:       strings.ToLower(name),
		Visibility: visibility,
		OwnerID:    ownerID,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := s.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Room{}, fmt.Errorf("failed to start tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return
		}
	}()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM rooms WHERE name = ?`, r.Name).Scan(&existing)
	if err == nil {
		return Room{}, ErrNameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Room{}, fmt.Errorf("failed to check name: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (id, name, visibility, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Name, string(r.Visibility), r.OwnerID, r.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Room{}, fmt.Errorf("failed to insert room: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id, role, status) VALUES (?, ?, ?, ?)`,
		r.ID, r.OwnerID, string(RoleOwner), string(StatusAccepted),
	); err != nil {
		return Room{}, fmt.Errorf("failed to insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Room{}, fmt.Errorf("failed to commit: %w", err)
	}
	return r, nil
}

// Lookup finds a room by id, falling back to the normalized name.
func (s *Service) Lookup(ctx context.Context, idOrName string) (Room, error) {
	r, err := s.scanRoom(ctx, `SELECT id, name, visibility, owner_id, created_at FROM rooms WHERE id = ?`, idOrName)
	if errors.Is(err, ErrNotFound) {
		return s.scanRoom(ctx, `SELECT id, name, visibility, owner_id, created_at FROM rooms WHERE name = ?`, strings.ToLower(idOrName))
	}
	return r, err
}

func (s *Service) scanRoom(ctx context.Context, query string, arg any) (Room, error) {
	var r Room
	var visibility, createdAt string
	err := s.database.QueryRowContext(ctx, query, arg).Scan(&r.ID, &r.Name, &visibility, &r.OwnerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	} else if err != nil {
		return Room{}, fmt.Errorf("failed to query room: %w", err)
	}
	r.Visibility = Visibility(visibility)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

// RequestJoin records or re-opens a pending membership request.
func (s *Service) RequestJoin(ctx context.Context, roomID, userID string) (Member, error) {
	if _, err := s.Lookup(ctx, roomID); err != nil {
		return Member{}, err
	}
	m := Member{RoomID: roomID, UserID: userID, Role: RoleMember, Status: StatusPending}
	if _, err := s.database.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id, role, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET status = excluded.status`,
		m.RoomID, m.UserID, string(m.Role), string(m.Status),
	); err != nil {
		return Member{}, fmt.Errorf("failed to upsert membership: %w", err)
	}
	return m, nil
}

// PendingRequests lists pending join requests. Owner only.
func (s *Service) PendingRequests(ctx context.Context, roomID, requesterID string) ([]Member, error) {
	r, err := s.Lookup(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != requesterID {
		return nil, ErrNotAllowed
	}
	return s.members(ctx, roomID, string(StatusPending))
}

// Respond accepts or rejects a pending request. Owner only.
func (s *Service) Respond(ctx context.Context, roomID, userID, requesterID string, accept bool) error {
	r, err := s.Lookup(ctx, roomID)
	if err != nil {
		return err
	}
	if r.OwnerID != requesterID {
		return ErrNotAllowed
	}
	status := StatusRejected
	if accept {
		status = StatusAccepted
	}
	res, err := s.database.ExecContext(ctx,
		`UPDATE room_members SET status = ? WHERE room_id = ? AND user_id = ?`,
		string(status), roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Members lists all memberships of a room.
func (s *Service) Members(ctx context.Context, roomID string) ([]Member, error) {
	if _, err := s.Lookup(ctx, roomID); err != nil {
		return nil, err
	}
	return s.members(ctx, roomID, "")
}

func (s *Service) members(ctx context.Context, roomID, status string) ([]Member, error) {
	query := `SELECT room_id, user_id, role, status FROM room_members WHERE room_id = ?`
	args := []any{roomID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	rows, err := s.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		var role, st string
		if err := rows.Scan(&m.RoomID, &m.UserID, &role, &st); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role, m.Status = Role(role), Status(st)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RoomsFor lists the rooms a user owns or has been accepted into.
func (s *Service) RoomsFor(ctx context.Context, userID string) ([]Room, error) {
	rows, err := s.database.QueryContext(ctx,
		`SELECT DISTINCT r.id, r.name, r.visibility, r.owner_id, r.created_at
		FROM rooms r LEFT JOIN room_members m ON m.room_id = r.id
		WHERE r.owner_id = ? OR (m.user_id = ? AND m.status = ?)
		ORDER BY r.created_at`,
		userID, userID, string(StatusAccepted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()
	var out []Room
	for rows.Next() {
		var r Room
		var visibility, createdAt string
		if err := rows.Scan(&r.ID, &r.Name, &visibility, &r.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		r.Visibility = Visibility(visibility)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Authorize reports whether user may join the room's replication session:
// public rooms admit anyone, private rooms admit the owner and accepted
// members.
func (s *Service) Authorize(ctx context.Context, roomID, userID string) error {
	r, err := s.Lookup(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Visibility == Public || r.OwnerID == userID {
		return nil
	}
	var status string
	err = s.database.QueryRowContext(ctx,
		`SELECT status FROM room_members WHERE room_id = ? AND user_id = ?`,
		r.ID, userID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotAllowed
	} else if err != nil {
		return fmt.Errorf("failed to query membership: %w", err)
	}
	if Status(status) != StatusAccepted {
		return ErrNotAllowed
	}
	return nil
}
