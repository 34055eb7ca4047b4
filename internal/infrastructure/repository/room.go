package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/hilthontt/bingo/internal/domain"
)

const (
	codeLength      = 4
	codeCharset     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 64
)

var charsetLen = big.NewInt(int64(len(codeCharset)))

var (
	ErrRegistryFull       = errors.New("room registry is full")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
)

// roomEntry owns the lock for one room. removed is set, under mu, once the
// entry has left the index, so a caller that looked it up just before still
// sees the room as gone.
type roomEntry struct {
	mu      sync.Mutex
	room    *domain.Room
	removed bool
}

// RoomRegistry maps join codes to live rooms. The index lock is never held
// while a room lock is being acquired; a room lock may be held while the
// index lock is taken to drop the entry.
type RoomRegistry struct {
	rooms    map[string]*roomEntry
	capacity uint
	newCode  func() (string, error)
	mu       *sync.RWMutex
}

// NewRoomRegistry returns an empty registry. A zero capacity means unbounded.
func NewRoomRegistry(capacity uint) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[string]*roomEntry),
		capacity: capacity,
		newCode:  generateJoinCode,
		mu:       &sync.RWMutex{},
	}
}

func (r *RoomRegistry) Create(ctx context.Context, host domain.Player, gridSize int, onCreate func(*domain.Room)) (*domain.Room, error) {
	r.mu.Lock()

	if r.capacity > 0 && uint(len(r.rooms)) >= r.capacity {
		r.mu.Unlock()
		return nil, ErrRegistryFull
	}

	code, err := r.uniqueCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	room, err := domain.NewRoom(code, host, gridSize)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	entry := &roomEntry{room: room}
	entry.mu.Lock()
	r.rooms[code] = entry
	r.mu.Unlock()

	defer entry.mu.Unlock()
	if onCreate != nil {
		onCreate(room)
	}
	return room.Snapshot(), nil
}

// Get returns a snapshot of the room registered under code, matched
// case-insensitively.
func (r *RoomRegistry) Get(ctx context.Context, code string) (*domain.Room, error) {
	entry, ok := r.lookup(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return nil, domain.ErrRoomNotFound
	}
	return entry.room.Snapshot(), nil
}

// Mutate runs fn with exclusive access to the room. A room that fn leaves
// closed is removed before the lock is released, whatever fn returned.
func (r *RoomRegistry) Mutate(ctx context.Context, code string, fn func(*domain.Room) error) error {
	entry, ok := r.lookup(code)
	if !ok {
		return domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return domain.ErrRoomNotFound
	}

	err := fn(entry.room)
	if entry.room.Closed() {
		r.removeLocked(entry)
	}
	return err
}

// Remove is idempotent.
func (r *RoomRegistry) Remove(ctx context.Context, code string) error {
	entry, ok := r.lookup(code)
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.removed {
		r.removeLocked(entry)
	}
	return nil
}

// ReapFinished drops FINISHED rooms that ended more than olderThan ago and
// returns their codes. onReap, when not nil, runs under each reaped room's
// lock, before its code can be handed out again.
func (r *RoomRegistry) ReapFinished(olderThan time.Duration, onReap func(*domain.Room)) []string {
	cutoff := time.Now().Add(-olderThan)

	var reaped []string
	for _, entry := range r.entries() {
		entry.mu.Lock()
		room := entry.room
		if !entry.removed && room.Status == domain.StatusFinished && room.FinishedAt.Before(cutoff) {
			if onReap != nil {
				onReap(room)
			}
			r.removeLocked(entry)
			reaped = append(reaped, room.Code)
		}
		entry.mu.Unlock()
	}
	return reaped
}

func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *RoomRegistry) CountByStatus() map[domain.Status]int {
	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, entry := range r.entries() {
		entry.mu.Lock()
		if !entry.removed {
			counts[entry.room.Status]++
		}
		entry.mu.Unlock()
	}
	return counts
}

func (r *RoomRegistry) lookup(code string) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.rooms[normalizeCode(code)]
	return entry, ok
}

func (r *RoomRegistry) entries() []*roomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, entry := range r.rooms {
		entries = append(entries, entry)
	}
	return entries
}

// removeLocked requires entry.mu to be held.
func (r *RoomRegistry) removeLocked(entry *roomEntry) {
	entry.removed = true

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rooms[entry.room.Code]; ok && current == entry {
		delete(r.rooms, entry.room.Code)
	}
}

func (r *RoomRegistry) uniqueCodeLocked() (string, error) {
	for range maxCodeAttempts {
		code, err := r.newCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateJoinCode() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)
	for range codeLength {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeCharset[n.Int64()])
	}
	return b.String(), nil
}
