package batch

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"taptile/internal/models"
)

// Broadcaster multicasts an event to every connection in a game's room
type Broadcaster interface {
	ToRoom(gameID, event string, payload any) error
}

// Aggregator coalesces per-tile claim notifications into periodic batched
// frames, bounding each room's broadcast rate to one frame per interval.
// It is constructed once at startup and shared by all handlers.
type Aggregator struct {
	mu       sync.Mutex
	pending  map[string]map[int]models.TileUpdate
	interval time.Duration
	rooms    Broadcaster
	now      func() time.Time
}

// New creates an aggregator that flushes on the given interval
func New(interval time.Duration, rooms Broadcaster) *Aggregator {
	return &Aggregator{
		pending:  make(map[string]map[int]models.TileUpdate),
		interval: interval,
		rooms:    rooms,
		now:      time.Now,
	}
}

// Record queues a claim notification for the next flush. A later update
// for the same tile within one window replaces the earlier one; tiles are
// write-once, so this only collapses duplicate notifications.
func (a *Aggregator) Record(gameID string, update models.TileUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	queue, ok := a.pending[gameID]
	if !ok {
		queue = make(map[int]models.TileUpdate)
		a.pending[gameID] = queue
	}
	queue[update.TileID] = update
}

// DropGame discards any pending notifications for a finished game
func (a *Aggregator) DropGame(gameID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, gameID)
}

// Run flushes on every tick until the context is cancelled
func (a *Aggregator) Run(ctx context.Context) {
	log.Printf("batch: aggregator started (interval %s)", a.interval)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flush()
		}
	}
}

// flush broadcasts one frame per game with pending updates and clears the
// queues. Queued entries are never requeued: the claims themselves are
// already committed, only the notification is at-most-once.
func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	batches := a.pending
	a.pending = make(map[string]map[int]models.TileUpdate)
	a.mu.Unlock()

	timestamp := a.now()
	for gameID, queue := range batches {
		updates := make([]models.TileUpdate, 0, len(queue))
		for _, update := range queue {
			updates = append(updates, update)
		}
		sort.Slice(updates, func(i, j int) bool {
			return updates[i].TileID < updates[j].TileID
		})
		frame := models.BatchFrame{Updates: updates, Timestamp: timestamp}
		if err := a.rooms.ToRoom(gameID, models.EventBatchUpdate, frame); err != nil {
			log.Printf("batch: broadcast failed for game %s: %v", gameID, err)
		}
	}
}
