package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/inhouse-gg/queuebot/internal/domain/queue"
)

type entryKey struct {
	channelID int64
	playerID  int64
	role      queue.Role
}

// QueueRepository keeps queue entries in process memory. Suitable for tests
// and single-instance deployments without a database.
type QueueRepository struct {
	mu      sync.RWMutex
	entries map[entryKey]queue.Entry
}

func NewQueueRepository() *QueueRepository {
	return &QueueRepository{entries: make(map[entryKey]queue.Entry)}
}

var _ queue.Repository = (*QueueRepository)(nil)

func (r *QueueRepository) ListChannel(_ context.Context, channelID int64) ([]queue.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []queue.Entry
	for _, e := range r.entries {
		if e.ChannelID == channelID {
			out = append(out, e)
		}
	}
	sortByAge(out)
	return out, nil
}

func (r *QueueRepository) ListPlayer(_ context.Context, playerID int64) ([]queue.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []queue.Entry
	for _, e := range r.entries {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	sortByAge(out)
	return out, nil
}

func (r *QueueRepository) ActiveReadyChecks(_ context.Context, serverID int64, playerIDs []int64) (map[int64]string, error) {
	wanted := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		wanted[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]string)
	for _, e := range r.entries {
		if e.ServerID == serverID && e.InReadyCheck() && wanted[e.PlayerID] {
			out[e.PlayerID] = e.ReadyCheckID
		}
	}
	return out, nil
}

func (r *QueueRepository) ActiveChannels(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]bool)
	var out []int64
	for _, e := range r.entries {
		if !seen[e.ChannelID] {
			seen[e.ChannelID] = true
			out = append(out, e.ChannelID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *QueueRepository) Upsert(_ context.Context, e queue.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entryKey{channelID: e.ChannelID, playerID: e.PlayerID, role: e.Role}] = e
	return nil
}

func (r *QueueRepository) DeletePlayer(_ context.Context, playerID, channelID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.PlayerID == playerID && (channelID == 0 || e.ChannelID == channelID) {
			delete(r.entries, key)
		}
	}
	r.unlinkDuosLocked(func(e queue.Entry) bool {
		return e.DuoID == playerID && (channelID == 0 || e.ChannelID == channelID)
	})
	return nil
}

func (r *QueueRepository) DeletePlayers(_ context.Context, channelID int64, playerIDs []int64) error {
	targets := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		targets[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.ChannelID == channelID && targets[e.PlayerID] {
			delete(r.entries, key)
		}
	}
	return nil
}

func (r *QueueRepository) TagReadyCheck(_ context.Context, channelID int64, playerIDs []int64, checkID string) error {
	targets := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		targets[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.ChannelID == channelID && targets[e.PlayerID] {
			e.ReadyCheckID = checkID
			r.entries[key] = e
		}
	}
	return nil
}

func (r *QueueRepository) ClearReadyCheck(_ context.Context, checkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.ReadyCheckID == checkID {
			e.ReadyCheckID = ""
			r.entries[key] = e
		}
	}
	return nil
}

func (r *QueueRepository) ClearAllReadyChecks(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.ReadyCheckID != "" {
			e.ReadyCheckID = ""
			r.entries[key] = e
		}
	}
	return nil
}

func (r *QueueRepository) DeleteByReadyCheck(_ context.Context, checkID string) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	affected := make(map[int64]bool)
	for _, e := range r.entries {
		if e.ReadyCheckID == checkID {
			affected[e.PlayerID] = true
		}
	}

	var ids []int64
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Tagged players leave the queue everywhere, not just where tagged.
	for key, e := range r.entries {
		if affected[e.PlayerID] {
			delete(r.entries, key)
		}
	}
	r.unlinkDuosLocked(func(e queue.Entry) bool { return affected[e.DuoID] })
	return ids, nil
}

func (r *QueueRepository) DropPlayers(_ context.Context, playerIDs []int64, channelID, serverID int64) error {
	targets := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		targets[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inScope := func(e queue.Entry) bool {
		if channelID != 0 {
			return e.ChannelID == channelID
		}
		return e.ServerID == serverID
	}
	for key, e := range r.entries {
		if targets[e.PlayerID] && inScope(e) {
			delete(r.entries, key)
		}
	}
	r.unlinkDuosLocked(func(e queue.Entry) bool { return targets[e.DuoID] && inScope(e) })
	return nil
}

func (r *QueueRepository) SetDuo(_ context.Context, channelID, playerID, partnerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.ChannelID != channelID {
			continue
		}
		switch e.PlayerID {
		case playerID:
			e.DuoID = partnerID
		case partnerID:
			e.DuoID = playerID
		default:
			continue
		}
		r.entries[key] = e
	}
	return nil
}

func (r *QueueRepository) ClearDuo(_ context.Context, channelID, playerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.ChannelID == channelID && (e.PlayerID == playerID || e.DuoID == playerID) {
			e.DuoID = 0
			r.entries[key] = e
		}
	}
	return nil
}

func (r *QueueRepository) Reset(_ context.Context, channelID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if channelID == 0 {
		r.entries = make(map[entryKey]queue.Entry)
		return nil
	}
	for key, e := range r.entries {
		if e.ChannelID == channelID {
			delete(r.entries, key)
		}
	}
	return nil
}

// unlinkDuosLocked clears duo links on entries whose partner matches the
// predicate. Callers hold the write lock.
func (r *QueueRepository) unlinkDuosLocked(partnerGone func(queue.Entry) bool) {
	for key, e := range r.entries {
		if e.DuoID != 0 && partnerGone(e) {
			e.DuoID = 0
			r.entries[key] = e
		}
	}
}

func sortByAge(entries []queue.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].QueuedAt.Equal(entries[j].QueuedAt) {
			return entries[i].PlayerID < entries[j].PlayerID
		}
		return entries[i].QueuedAt.Before(entries[j].QueuedAt)
	})
}
