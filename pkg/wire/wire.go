// Package wire pumps automerge sync messages over a websocket connection.
// One session pairs a read goroutine applying incoming messages with a
// write goroutine draining generated ones; the transport below is treated
// as a reliable ordered channel.
package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/gorilla/websocket"
)

// Session drives one replication connection for a document.
type Session struct {
	conn    *websocket.Conn
	state   *automerge.SyncState
	onApply func()
	wake    chan struct{}
	logger  *slog.Logger
}

// NewSession wraps conn with the given sync state. onApply runs after each
// received message is applied to the document; it may be nil.
func NewSession(conn *websocket.Conn, state *automerge.SyncState, onApply func(), logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		conn:    conn,
		state:   state,
		onApply: onApply,
		wake:    make(chan struct{}, 1),
		logger:  logger,
	}
}

// Wake nudges the write pump because local changes are waiting. Safe to
// call from any goroutine; coalesces when a nudge is already pending.
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) readAndReceiveMessage() error {
	mt, p, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	switch mt {
	case websocket.BinaryMessage:
		if _, err := s.state.ReceiveMessage(p); err != nil {
			return fmt.Errorf("failed to receive message: %w", err)
		}
		if s.onApply != nil {
			s.onApply()
		}
	default:
	}
	return nil
}

func (s *Session) generateAndWriteMessage() (bool, error) {
	if msg, valid := s.state.GenerateMessage(); msg != nil {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, msg.Bytes()); err != nil {
			return false, fmt.Errorf("failed to write message: %w", err)
		}
		return valid, nil
	}
	return false, nil
}

func (s *Session) drain() error {
	for {
		ok, err := s.generateAndWriteMessage()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Run pumps messages both ways until the context is cancelled or the
// connection fails. The write pump drains after every wake, every applied
// inbound message, and on a coarse ticker as a safety net.
func (s *Session) Run(ctx context.Context) error {
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.conn.Close()
		for {
			if err := s.readAndReceiveMessage(); err != nil {
				s.logger.Debug("read pump stopped", "err", err)
				return
			}
			// An applied message usually warrants a response.
			s.Wake()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.conn.Close()

		if err := s.drain(); err != nil {
			s.logger.Debug("write pump stopped", "err", err)
			return
		}

		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-s.wake:
			case <-t.C:
			case <-ctx.Done():
				return
			}
			if err := s.drain(); err != nil {
				s.logger.Debug("write pump stopped", "err", err)
				return
			}
		}
	}()

	wg.Wait()
	return nil
}
