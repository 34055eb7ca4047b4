package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/hilthontt/bingo/internal/domain"
	"github.com/hilthontt/bingo/internal/infrastructure/metrics"
	"github.com/hilthontt/bingo/internal/infrastructure/repository"
)

// recordingHub mirrors ws.Hub's audience rules and keeps every delivery.
type recordingHub struct {
	mu        sync.Mutex
	audiences map[string]map[string]struct{}
	inbox     map[string][]domain.Event
}

func newRecordingHub() *recordingHub {
	return &recordingHub{
		audiences: make(map[string]map[string]struct{}),
		inbox:     make(map[string][]domain.Event),
	}
}

func (h *recordingHub) Attach(code, peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.audiences[code] == nil {
		h.audiences[code] = make(map[string]struct{})
	}
	h.audiences[code][peerID] = struct{}{}
}

func (h *recordingHub) Detach(code, peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.audiences[code], peerID)
}

func (h *recordingHub) Publish(code string, evt domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for peer := range h.audiences[code] {
		h.inbox[peer] = append(h.inbox[peer], evt)
	}
}

func (h *recordingHub) SendTo(peerID string, evt domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbox[peerID] = append(h.inbox[peerID], evt)
}

func (h *recordingHub) Drop(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.audiences, code)
}

// take returns and clears what peer has received.
func (h *recordingHub) take(peer string) []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	evts := h.inbox[peer]
	delete(h.inbox, peer)
	return evts
}

func types(evts []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(evts))
	for i, e := range evts {
		out[i] = e.Type
	}
	return out
}

func expectTypes(t *testing.T, peer string, got []domain.Event, want ...domain.EventType) {
	t.Helper()
	gotTypes := types(got)
	if fmt.Sprint(gotTypes) != fmt.Sprint(want) {
		t.Fatalf("%s: expected events %v, got %v", peer, want, gotTypes)
	}
}

type fixture struct {
	server   *Server
	hub      *recordingHub
	registry *repository.RoomRegistry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	registry := repository.NewRoomRegistry(0)
	hub := newRecordingHub()
	server := NewServer(registry, hub, nil, metrics.New(registry), zaptest.NewLogger(t).Sugar(), opts)
	return &fixture{server: server, hub: hub, registry: registry}
}

// lobby creates a room hosted by "alice" and joins the given peers, named
// after their ids.
func (f *fixture) lobby(t *testing.T, peers ...string) string {
	t.Helper()
	ctx := context.Background()
	code, err := f.server.CreateGame(ctx, "alice", "Alice", 5)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	for _, peer := range peers {
		if _, err := f.server.JoinGame(ctx, peer, code, peer); err != nil {
			t.Fatalf("JoinGame %s failed: %v", peer, err)
		}
	}
	f.hub.take("alice")
	for _, peer := range peers {
		f.hub.take(peer)
	}
	return code
}

func TestFullGame(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	code, err := f.server.CreateGame(ctx, "alice", "Alice", 5)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	created := f.hub.take("alice")
	expectTypes(t, "alice", created, domain.EventGameCreated)
	if got := created[0].Data.(domain.GameCreatedPayload).GameID; got != code {
		t.Errorf("Expected game id %s, got %s", code, got)
	}

	if _, err := f.server.JoinGame(ctx, "bob", code, "Bob"); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	expectTypes(t, "alice", f.hub.take("alice"), domain.EventPlayerJoined)
	expectTypes(t, "bob", f.hub.take("bob"), domain.EventPlayerJoined, domain.EventJoinedGame)

	if err := f.server.StartGame(ctx, "alice", code, 5); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	started := f.hub.take("bob")
	expectTypes(t, "bob", started, domain.EventGameStarted)
	if got := started[0].Data.(domain.GameStartedPayload).CurrentTurn; got != "alice" {
		t.Errorf("Expected alice to start, got %s", got)
	}
	f.hub.take("alice")

	if err := f.server.SelectNumber(ctx, "alice", code, 7); err != nil {
		t.Fatalf("SelectNumber failed: %v", err)
	}
	selected := f.hub.take("bob")
	expectTypes(t, "bob", selected, domain.EventNumberSelected)
	payload := selected[0].Data.(domain.NumberSelectedPayload)
	if payload.NextTurn != "bob" || payload.Selector != "Alice" || len(payload.CalledNumbers) != 1 {
		t.Errorf("Unexpected number_selected payload %+v", payload)
	}
	f.hub.take("alice")

	if err := f.server.SelectNumber(ctx, "bob", code, 7); !errors.Is(err, domain.ErrDuplicateNumber) {
		t.Errorf("Expected ErrDuplicateNumber, got %v", err)
	}
	if evts := f.hub.take("bob"); len(evts) != 0 {
		t.Errorf("Expected duplicate to be silent, got %v", types(evts))
	}

	if err := f.server.SelectNumber(ctx, "bob", code, 12); err != nil {
		t.Fatalf("SelectNumber failed: %v", err)
	}
	f.hub.take("alice")
	f.hub.take("bob")

	if err := f.server.ClaimBingo(ctx, "bob", code, nil); err != nil {
		t.Fatalf("ClaimBingo failed: %v", err)
	}
	over := f.hub.take("alice")
	expectTypes(t, "alice", over, domain.EventGameOver)
	if got := over[0].Data.(domain.GameOverPayload).Winner; got != "Bob" {
		t.Errorf("Expected winner Bob, got %s", got)
	}

	room, err := f.server.Snapshot(ctx, code)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if room.Status != domain.StatusFinished {
		t.Errorf("Expected FINISHED, got %s", room.Status)
	}
}

func TestJoinErrorsReachRequester(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.server.JoinGame(ctx, "bob", "ZZZZ", "Bob")
		if !errors.Is(err, domain.ErrRoomNotFound) {
			t.Fatalf("Expected ErrRoomNotFound, got %v", err)
		}
		evts := f.hub.take("bob")
		expectTypes(t, "bob", evts, domain.EventError)
		if got := evts[0].Data.(domain.ErrorPayload).Message; got != "Game not found" {
			t.Errorf("Unexpected message %q", got)
		}
	})

	t.Run("name taken", func(t *testing.T) {
		f := newFixture(t, Options{})
		code := f.lobby(t)
		if _, err := f.server.JoinGame(ctx, "bob", code, "Alice"); !errors.Is(err, domain.ErrNameTaken) {
			t.Fatalf("Expected ErrNameTaken, got %v", err)
		}
		evts := f.hub.take("bob")
		expectTypes(t, "bob", evts, domain.EventError)
		if got := evts[0].Data.(domain.ErrorPayload).Message; got != "Name already taken in this game" {
			t.Errorf("Unexpected message %q", got)
		}
		if evts := f.hub.take("alice"); len(evts) != 0 {
			t.Errorf("Expected host to hear nothing, got %v", types(evts))
		}
	})

	t.Run("full", func(t *testing.T) {
		f := newFixture(t, Options{})
		code := f.lobby(t, "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9")
		if _, err := f.server.JoinGame(ctx, "p10", code, "p10"); !errors.Is(err, domain.ErrRoomFull) {
			t.Fatalf("Expected ErrRoomFull, got %v", err)
		}
		evts := f.hub.take("p10")
		if got := evts[0].Data.(domain.ErrorPayload).Message; got != "Game is full (Max 10 players)" {
			t.Errorf("Unexpected message %q", got)
		}
	})

	t.Run("already started", func(t *testing.T) {
		f := newFixture(t, Options{})
		code := f.lobby(t, "bob")
		f.server.StartGame(ctx, "alice", code, 5)
		if _, err := f.server.JoinGame(ctx, "carol", code, "Carol"); !errors.Is(err, domain.ErrRoomAlreadyStarted) {
			t.Fatalf("Expected ErrRoomAlreadyStarted, got %v", err)
		}
		evts := f.hub.take("carol")
		if got := evts[0].Data.(domain.ErrorPayload).Message; got != "Game already started" {
			t.Errorf("Unexpected message %q", got)
		}
	})
}

func TestSilentRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	code := f.lobby(t, "bob")

	if err := f.server.StartGame(ctx, "bob", code, 5); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("Expected ErrNotHost, got %v", err)
	}
	if err := f.server.SelectNumber(ctx, "alice", code, 3); !errors.Is(err, domain.ErrNotPlaying) {
		t.Errorf("Expected ErrNotPlaying, got %v", err)
	}
	f.server.StartGame(ctx, "alice", code, 5)
	f.hub.take("alice")
	f.hub.take("bob")

	if err := f.server.SelectNumber(ctx, "bob", code, 3); !errors.Is(err, domain.ErrNotYourTurn) {
		t.Errorf("Expected ErrNotYourTurn, got %v", err)
	}
	if err := f.server.SelectNumber(ctx, "alice", "QQQQ", 3); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	for _, peer := range []string{"alice", "bob"} {
		if evts := f.hub.take(peer); len(evts) != 0 {
			t.Errorf("%s: expected no events, got %v", peer, types(evts))
		}
	}
}

func TestDisconnectMidGameTerminates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	code := f.lobby(t, "bob", "carol")
	f.server.StartGame(ctx, "alice", code, 5)
	f.hub.take("alice")
	f.hub.take("bob")
	f.hub.take("carol")

	if err := f.server.Disconnect(ctx, "bob", code); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	for _, peer := range []string{"alice", "carol"} {
		evts := f.hub.take(peer)
		expectTypes(t, peer, evts, domain.EventGameTerminated)
		reason := evts[0].Data.(domain.GameTerminatedPayload).Reason
		if reason != "Game ended because bob went offline." {
			t.Errorf("%s: unexpected reason %q", peer, reason)
		}
	}
	if evts := f.hub.take("bob"); len(evts) != 0 {
		t.Errorf("Expected departed peer to receive nothing, got %v", types(evts))
	}
	if _, err := f.server.Snapshot(ctx, code); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("Expected terminated room to be gone, got %v", err)
	}

	// Remaining players disconnecting later find nothing to clean up.
	if err := f.server.Disconnect(ctx, "alice", code); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestDisconnectInLobby(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	code := f.lobby(t, "bob")

	if err := f.server.Disconnect(ctx, "alice", code); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	evts := f.hub.take("bob")
	expectTypes(t, "bob", evts, domain.EventPlayerLeft)
	roster := evts[0].Data.(domain.RosterPayload).Players
	if len(roster) != 1 || roster[0].ID != "bob" {
		t.Errorf("Unexpected roster %+v", roster)
	}

	// Bob inherited the lobby and can start it alone.
	if err := f.server.StartGame(ctx, "bob", code, 5); err != nil {
		t.Errorf("Expected promoted host to start, got %v", err)
	}

	f.server.Disconnect(ctx, "bob", code)
	if f.registry.Count() != 0 {
		t.Errorf("Expected empty room to be removed, got %d rooms", f.registry.Count())
	}
}

func TestVerifiedClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{VerifyClaims: true})
	code := f.lobby(t)
	f.server.StartGame(ctx, "alice", code, 5)

	board := make([]int, 25)
	for i := range board {
		board[i] = i + 1
	}
	if err := f.server.ClaimBingo(ctx, "alice", code, board); !errors.Is(err, domain.ErrClaimRejected) {
		t.Fatalf("Expected ErrClaimRejected, got %v", err)
	}
	for n := 1; n <= 25; n++ {
		if err := f.server.SelectNumber(ctx, "alice", code, n); err != nil {
			t.Fatalf("SelectNumber %d failed: %v", n, err)
		}
	}
	if err := f.server.ClaimBingo(ctx, "alice", code, board); err != nil {
		t.Errorf("Expected verified claim to pass, got %v", err)
	}
}

func TestConcurrentSelectionsKeepTurnOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	peers := []string{"bob", "carol", "dave"}
	code := f.lobby(t, peers...)
	if err := f.server.StartGame(ctx, "alice", code, 10); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	f.hub.take("alice")

	order := append([]string{"alice"}, peers...)
	var wg sync.WaitGroup
	for _, peer := range order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 1; n <= 100; n++ {
				f.server.SelectNumber(ctx, peer, code, n)
			}
		}()
	}
	wg.Wait()

	evts := f.hub.take("alice")
	room, _ := f.server.Snapshot(ctx, code)
	if len(evts) != len(room.CalledNumbers) {
		t.Fatalf("Expected one broadcast per called number, got %d for %d", len(evts), len(room.CalledNumbers))
	}

	seen := make(map[int]bool)
	for i, evt := range evts {
		p := evt.Data.(domain.NumberSelectedPayload)
		if seen[p.Number] {
			t.Fatalf("Number %d called twice", p.Number)
		}
		seen[p.Number] = true
		if len(p.CalledNumbers) != i+1 {
			t.Fatalf("Broadcast %d carries %d numbers; order diverged", i, len(p.CalledNumbers))
		}
		want := order[(i+1)%len(order)]
		if p.NextTurn != want {
			t.Fatalf("Broadcast %d: expected next turn %s, got %s", i, want, p.NextTurn)
		}
	}
}

func TestReapFinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	code := f.lobby(t)
	f.server.StartGame(ctx, "alice", code, 5)
	f.server.ClaimBingo(ctx, "alice", code, nil)
	f.registry.Mutate(ctx, code, func(r *domain.Room) error {
		r.FinishedAt = time.Now().Add(-time.Hour)
		return nil
	})

	if got := f.server.ReapFinished(2 * time.Hour); got != 0 {
		t.Errorf("Expected nothing reaped yet, got %d", got)
	}
	if got := f.server.ReapFinished(time.Minute); got != 1 {
		t.Errorf("Expected 1 reaped game, got %d", got)
	}
	if _, err := f.server.Snapshot(ctx, code); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("Expected reaped game to be gone, got %v", err)
	}
}
