// scribble is a headless client that joins a room and draws: it creates a
// rectangle, drags it, then sketches a freehand path through the throttled
// scheduler. Run a few of these against one room to watch convergence.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/boardkit/boardkit/pkg/board"
	"github.com/boardkit/boardkit/pkg/sched"
	"github.com/boardkit/boardkit/pkg/shape"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "http://localhost:8080", "the server base url")
	roomVar := flag.String("room", "scratch", "the room name to draw in")
	userVar := flag.String("user", fmt.Sprintf("scribble-%d", os.Getpid()), "the identity to draw as")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := ensureRoom(ctx, *addrVar, *roomVar, *userVar); err != nil {
		return err
	}

	sess, err := board.Dial(ctx, board.SessionConfig{
		BaseURL: *addrVar,
		Room:    *roomVar,
		User:    *userVar,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	defer sess.Close()

	b := sess.Board
	unsubscribe := b.Subscribe(func(shapes []shape.Shape) {
		slog.Debug("board changed", "shapes", len(shapes))
	})
	defer unsubscribe()

	// Drop a rectangle and drag it. The whole drag is one undo step.
	index, err := b.CreateShape(ctx, shape.Rectangle{X: 100, Y: 100, Width: 20, Height: 20})
	if err != nil {
		return err
	}
	slog.Info("created rectangle", "index", index)

	b.Pause()
	x, y := 100.0, 100.0
	for i := 0; i < 30; i++ {
		x += rand.Float64()*20 - 10
		y += rand.Float64()*20 - 10
		b.PatchShape(ctx, index, shape.Patch{X: shape.Float(x), Y: shape.Float(y)})
		time.Sleep(20 * time.Millisecond)
	}
	b.Resume()
	slog.Info("dragged rectangle", "index", index, "x", x, "y", y)

	// Sketch a freehand path. Points accumulate locally at pointer rate
	// and hit the network once per throttle window plus a final flush.
	b.Pause()
	pathIndex, err := b.CreateShape(ctx, shape.Path{StrokeColor: "#6dcdec"})
	if err != nil {
		return err
	}
	pathView, detach := b.AttachView(pathIndex, nil)
	defer detach()
	scheduler := b.PathScheduler(pathView, sched.DefaultWindow)
	defer scheduler.Close()

	points := make([]shape.Point, 0, 200)
	px, py := 500.0, 500.0
	for i := 0; i < 200; i++ {
		px += rand.Float64()*10 - 5
		py += rand.Float64()*10 - 5
		points = append(points, shape.Point{X: px, Y: py})
		pathView.ApplyLocal(shape.Patch{Points: points})
		scheduler.Schedule()
		time.Sleep(10 * time.Millisecond)
	}
	if err := scheduler.Flush(ctx); err != nil {
		slog.Warn("final flush failed", "err", err)
	}
	b.Resume()
	slog.Info("sketched path", "index", pathIndex, "points", len(points))

	// Let the pump replicate the tail before closing.
	time.Sleep(2 * time.Second)
	return nil
}

// ensureRoom creates the room if it does not exist yet; an existing name
// is fine, someone else got there first.
func ensureRoom(ctx context.Context, baseURL, name, user string) error {
	body, _ := json.Marshal(map[string]string{"name": name, "visibility": "PUBLIC"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("unexpected status %d creating room", resp.StatusCode)
	}
}
