package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/bingo/internal/domain"
)

func TestRoomRegistryCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("code shape", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		room, err := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(room.Code) != codeLength {
			t.Errorf("Expected code length %d, got %q", codeLength, room.Code)
		}
		for _, c := range room.Code {
			if !strings.ContainsRune(codeCharset, c) {
				t.Errorf("Code %q has character %q outside the charset", room.Code, c)
			}
		}
	})

	t.Run("onCreate runs before the room is reachable", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		var seen string
		room, err := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, func(r *domain.Room) {
			seen = r.Code
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if seen != room.Code {
			t.Errorf("Expected onCreate to see %s, got %s", room.Code, seen)
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		codes := []string{"AAAA", "AAAA", "BBBB"}
		registry.newCode = func() (string, error) {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}
		first, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
		second, err := registry.Create(ctx, domain.NewPlayer("p1", "Bob"), 5, nil)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if first.Code != "AAAA" || second.Code != "BBBB" {
			t.Errorf("Expected AAAA and BBBB, got %s and %s", first.Code, second.Code)
		}
	})

	t.Run("exhausted code space", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		registry.newCode = func() (string, error) { return "ZZZZ", nil }
		registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
		if _, err := registry.Create(ctx, domain.NewPlayer("p1", "Bob"), 5, nil); !errors.Is(err, ErrCodeSpaceExhausted) {
			t.Errorf("Expected ErrCodeSpaceExhausted, got %v", err)
		}
	})

	t.Run("capacity", func(t *testing.T) {
		registry := NewRoomRegistry(1)
		registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
		if _, err := registry.Create(ctx, domain.NewPlayer("p1", "Bob"), 5, nil); !errors.Is(err, ErrRegistryFull) {
			t.Errorf("Expected ErrRegistryFull, got %v", err)
		}
	})

	t.Run("concurrent creates get distinct codes", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		const n = 200
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			codes = make(map[string]struct{}, n)
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				room, err := registry.Create(ctx, domain.NewPlayer(fmt.Sprintf("p%d", i), "Host"), 5, nil)
				if err != nil {
					t.Errorf("Create failed: %v", err)
					return
				}
				mu.Lock()
				codes[room.Code] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()
		if len(codes) != n || registry.Count() != n {
			t.Errorf("Expected %d distinct rooms, got %d codes and %d registered", n, len(codes), registry.Count())
		}
	})
}

func TestRoomRegistryGet(t *testing.T) {
	ctx := context.Background()
	registry := NewRoomRegistry(0)
	room, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)

	got, err := registry.Get(ctx, " "+strings.ToLower(room.Code)+" ")
	if err != nil {
		t.Fatalf("Expected case-insensitive lookup to succeed, got %v", err)
	}
	if got.Code != room.Code {
		t.Errorf("Expected %s, got %s", room.Code, got.Code)
	}

	got.Players[0].Name = "Mallory"
	again, _ := registry.Get(ctx, room.Code)
	if again.Players[0].Name != "Alice" {
		t.Errorf("Get returned a live room instead of a snapshot")
	}

	if _, err := registry.Get(ctx, "NOPE"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomRegistryMutate(t *testing.T) {
	ctx := context.Background()

	t.Run("removes terminated rooms", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		room, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
		err := registry.Mutate(ctx, room.Code, func(r *domain.Room) error {
			if _, err := r.Join(domain.NewPlayer("p1", "Bob")); err != nil {
				return err
			}
			if _, err := r.Start("p0", 5); err != nil {
				return err
			}
			_, err := r.Disconnect("p1")
			return err
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := registry.Get(ctx, room.Code); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("Expected terminated room to be gone, got %v", err)
		}
	})

	t.Run("removes empty rooms even on error", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		room, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
		boom := errors.New("boom")
		err := registry.Mutate(ctx, room.Code, func(r *domain.Room) error {
			r.Disconnect("p0")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected fn error to propagate, got %v", err)
		}
		if registry.Count() != 0 {
			t.Errorf("Expected empty room to be removed")
		}
	})

	t.Run("serializes concurrent mutations", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		room, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 10, nil)
		registry.Mutate(ctx, room.Code, func(r *domain.Room) error {
			_, err := r.Start("p0", 10)
			return err
		})

		var wg sync.WaitGroup
		for n := 1; n <= 100; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				registry.Mutate(ctx, room.Code, func(r *domain.Room) error {
					_, err := r.SelectNumber("p0", n)
					return err
				})
			}()
		}
		wg.Wait()

		got, _ := registry.Get(ctx, room.Code)
		if len(got.CalledNumbers) != 100 {
			t.Errorf("Expected 100 called numbers, got %d", len(got.CalledNumbers))
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		registry := NewRoomRegistry(0)
		err := registry.Mutate(ctx, "NOPE", func(*domain.Room) error { return nil })
		if !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}
	})
}

func TestRoomRegistryRemove(t *testing.T) {
	ctx := context.Background()
	registry := NewRoomRegistry(0)
	room, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)

	if err := registry.Remove(ctx, room.Code); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := registry.Remove(ctx, room.Code); err != nil {
		t.Errorf("Expected second Remove to be a no-op, got %v", err)
	}
	if registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Count())
	}
}

func TestRoomRegistryReapFinished(t *testing.T) {
	ctx := context.Background()
	registry := NewRoomRegistry(0)
	lobby, _ := registry.Create(ctx, domain.NewPlayer("p0", "Alice"), 5, nil)
	finished, _ := registry.Create(ctx, domain.NewPlayer("p1", "Bob"), 5, nil)
	registry.Mutate(ctx, finished.Code, func(r *domain.Room) error {
		r.Start("p1", 5)
		_, err := r.ClaimWin("p1", nil, false)
		r.FinishedAt = time.Now().Add(-time.Hour)
		return err
	})

	counts := registry.CountByStatus()
	if counts[domain.StatusLobby] != 1 || counts[domain.StatusFinished] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}

	if reaped := registry.ReapFinished(2*time.Hour, nil); len(reaped) != 0 {
		t.Errorf("Expected nothing reaped yet, got %v", reaped)
	}
	var seen []string
	reaped := registry.ReapFinished(time.Minute, func(r *domain.Room) {
		seen = append(seen, r.Code)
	})
	if len(seen) != 1 {
		t.Errorf("Expected onReap to run once, got %v", seen)
	}
	if len(reaped) != 1 || reaped[0] != finished.Code {
		t.Fatalf("Expected %s reaped, got %v", finished.Code, reaped)
	}
	if _, err := registry.Get(ctx, lobby.Code); err != nil {
		t.Errorf("Expected lobby room to survive, got %v", err)
	}
}
