package queue

import (
	"testing"
	"time"
)

var snapshotEpoch = time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)

// entryAt builds a queue entry whose age is determined by seq: lower seq
// means longer in queue.
func entryAt(playerID int64, role Role, seq int) Entry {
	return Entry{
		ChannelID: 1,
		PlayerID:  playerID,
		ServerID:  100,
		Role:      role,
		Name:      "player",
		QueuedAt:  snapshotEpoch.Add(time.Duration(seq) * time.Minute),
	}
}

func linkDuo(a, b *Entry) {
	a.DuoID = b.PlayerID
	b.DuoID = a.PlayerID
}

// fullQueue returns two players per role, queued in role order, then any
// extra entries appended.
func fullQueue(extra ...Entry) []Entry {
	var entries []Entry
	seq := 0
	var id int64 = 1
	for _, role := range Roles() {
		for i := 0; i < 2; i++ {
			entries = append(entries, entryAt(id, role, seq))
			id++
			seq++
		}
	}
	return append(entries, extra...)
}

func TestNewSnapshot_Empty(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(1, nil)
	if s.Len() != 0 {
		t.Fatalf("empty snapshot should hold no entries, got %d", s.Len())
	}
	if s.ChannelID != 1 {
		t.Fatalf("channel id not carried, got %d", s.ChannelID)
	}
}

func TestNewSnapshot_SeedGroupsRolesInOrder(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(1, fullQueue())
	if s.Len() != 10 {
		t.Fatalf("expected 10 entries, got %d", s.Len())
	}

	for i, role := range Roles() {
		for j := 0; j < 2; j++ {
			got := s.Entries[i*2+j]
			if got.Role != role {
				t.Fatalf("position %d: expected role %s, got %s", i*2+j, role, got.Role)
			}
		}
	}
}

func TestNewSnapshot_SeedPrefersSeniority(t *testing.T) {
	t.Parallel()

	// A third TOP joins last; the seed keeps the two older ones.
	late := entryAt(99, RoleTop, 100)
	entries := fullQueue(late)

	s := NewSnapshot(1, entries)
	if s.Len() != 11 {
		t.Fatalf("expected 11 entries, got %d", s.Len())
	}
	if s.Entries[0].PlayerID == 99 || s.Entries[1].PlayerID == 99 {
		t.Fatalf("late joiner should not displace senior seeds")
	}
	if s.Entries[10].PlayerID != 99 {
		t.Fatalf("late joiner should trail the seed, got %d at the back", s.Entries[10].PlayerID)
	}
}

func TestNewSnapshot_DuoPartnerPulledIntoSeed(t *testing.T) {
	t.Parallel()

	// The most senior TOP duos with a SUP who queued after two other
	// supports. The partner must land in the seed anyway.
	latePartner := entryAt(50, RoleSupport, 101)
	entries := fullQueue(latePartner)
	linkDuo(&entries[0], &entries[len(entries)-1])

	s := NewSnapshot(1, entries)

	supSeed := s.Entries[8:10]
	foundPartner := false
	for _, e := range supSeed {
		if e.PlayerID == 50 {
			foundPartner = true
		}
	}
	if !foundPartner {
		t.Fatalf("duo partner should be seeded alongside their partner, sup seed: %+v", supSeed)
	}

	// The evicted support is still in the snapshot, just after the seed.
	if s.Len() != 11 {
		t.Fatalf("eviction must not drop entries, got %d", s.Len())
	}
}

func TestNewSnapshot_DuoPartnerEvictsYoungestSeed(t *testing.T) {
	t.Parallel()

	// A senior SUP duos with a TOP who queued too late to seed. The TOP
	// seed is already full, so its youngest member makes room.
	lateTop := entryAt(60, RoleTop, 103)
	entries := fullQueue(lateTop)
	linkDuo(&entries[8], &entries[len(entries)-1])

	s := NewSnapshot(1, entries)

	topSeed := s.Entries[0:2]
	if topSeed[0].PlayerID != 1 || topSeed[1].PlayerID != 60 {
		t.Fatalf("expected top seed [1 60], got [%d %d]", topSeed[0].PlayerID, topSeed[1].PlayerID)
	}

	// The evicted top player stays in the snapshot behind the seed.
	if s.Len() != 11 {
		t.Fatalf("eviction must not drop entries, got %d", s.Len())
	}
	evictedSeen := false
	for _, e := range s.Entries[10:] {
		if e.PlayerID == 2 {
			evictedSeen = true
		}
	}
	if !evictedSeen {
		t.Fatalf("evicted seed should reappear in the remainder")
	}
}

func TestNewSnapshot_DuoPartnerAlreadySeededNoEviction(t *testing.T) {
	t.Parallel()

	// Both duo members are senior enough to seed on their own; nobody
	// gets evicted.
	entries := fullQueue()
	linkDuo(&entries[0], &entries[8])

	s := NewSnapshot(1, entries)
	if s.Len() != 10 {
		t.Fatalf("expected 10 entries, got %d", s.Len())
	}

	seen := make(map[int64]int)
	for _, e := range s.Entries {
		seen[e.PlayerID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("player %d appears %d times", id, n)
		}
	}
}

func TestNewSnapshot_MultiRolePlayerNotDuplicatedPerRole(t *testing.T) {
	t.Parallel()

	// Player 1 queued for TOP (seeded) and also for MID late.
	extra := entryAt(1, RoleMid, 102)
	entries := fullQueue(extra)

	s := NewSnapshot(1, entries)
	if s.Len() != 11 {
		t.Fatalf("expected 11 entries, got %d", s.Len())
	}

	type key struct {
		player int64
		role   Role
	}
	seen := make(map[key]int)
	for _, e := range s.Entries {
		seen[key{e.PlayerID, e.Role}]++
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("entry %+v appears %d times", k, n)
		}
	}
}

func TestSnapshot_ByRoleCoversAllRoles(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(1, []Entry{entryAt(1, RoleMid, 0)})
	byRole := s.ByRole()
	if len(byRole) != len(Roles()) {
		t.Fatalf("expected every role present, got %d", len(byRole))
	}
	if len(byRole[RoleMid]) != 1 {
		t.Fatalf("expected one mid entry, got %d", len(byRole[RoleMid]))
	}
	if len(byRole[RoleTop]) != 0 {
		t.Fatalf("expected no top entries, got %d", len(byRole[RoleTop]))
	}
}

func TestSnapshot_DuosListedOnce(t *testing.T) {
	t.Parallel()

	entries := fullQueue()
	linkDuo(&entries[0], &entries[3])

	s := NewSnapshot(1, entries)
	duos := s.Duos()
	if len(duos) != 1 {
		t.Fatalf("expected one duo, got %d", len(duos))
	}
}
