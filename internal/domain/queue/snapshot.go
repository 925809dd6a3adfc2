package queue

// Snapshot is an immutable, point-in-time view of a channel's queue. Entries
// are ordered so that the first ten are the composition the matchmaker should
// try first: per role, the two longest-waiting players (plus any duo partner
// required for the game to fire), then everyone else by age. The snapshot
// goes stale as soon as the underlying store changes.
type Snapshot struct {
	ChannelID int64
	ServerID  int64
	Entries   []Entry
}

// NewSnapshot builds the seeded ordering from entries sorted by QueuedAt
// ascending. Callers must have excluded players held by a ready check
// elsewhere on the server.
func NewSnapshot(channelID int64, entries []Entry) *Snapshot {
	if len(entries) == 0 {
		return &Snapshot{ChannelID: channelID}
	}

	s := &Snapshot{
		ChannelID: channelID,
		ServerID:  entries[0].ServerID,
	}

	byRole := make(map[Role][]Entry, len(Roles()))
	for _, e := range entries {
		byRole[e.Role] = append(byRole[e.Role], e)
	}

	// Seed: two most senior entries per role, pulling in duo partners and
	// evicting the role's least-senior seed entry to make room for them.
	seed := make(map[Role][]Entry, len(Roles()))
	for _, role := range Roles() {
		for _, e := range byRole[role] {
			if len(seed[role]) >= 2 {
				continue
			}
			if !holdsPlayer(seed[role], e.PlayerID) {
				seed[role] = append(seed[role], e)
			}

			if e.DuoID == 0 {
				continue
			}
			partner, ok := findPartner(entries, e)
			if ok && !holdsPlayer(seed[partner.Role], partner.PlayerID) {
				if len(seed[partner.Role]) >= 2 {
					// Evict the youngest so the duo stays together.
					seed[partner.Role] = seed[partner.Role][:len(seed[partner.Role])-1]
				}
				seed[partner.Role] = append(seed[partner.Role], partner)
			}
		}
	}

	ordered := make([]Entry, 0, len(entries))
	for _, role := range Roles() {
		ordered = append(ordered, seed[role]...)
	}

	seen := make(map[[2]int64]map[Role]bool, len(ordered))
	mark := func(e Entry) {
		key := [2]int64{e.ChannelID, e.PlayerID}
		if seen[key] == nil {
			seen[key] = make(map[Role]bool, 2)
		}
		seen[key][e.Role] = true
	}
	for _, e := range ordered {
		mark(e)
	}

	// The rest of the queue follows in plain seniority order so the search
	// can widen past the seed when it finds nothing balanced there.
	for _, e := range entries {
		if seen[[2]int64{e.ChannelID, e.PlayerID}][e.Role] {
			continue
		}
		ordered = append(ordered, e)
		mark(e)
	}

	s.Entries = ordered
	return s
}

func (s *Snapshot) Len() int {
	return len(s.Entries)
}

// ByRole partitions the snapshot, preserving entry order. Every role is
// present in the result even when empty.
func (s *Snapshot) ByRole() map[Role][]Entry {
	out := make(map[Role][]Entry, len(Roles()))
	for _, role := range Roles() {
		out[role] = []Entry{}
	}
	for _, e := range s.Entries {
		out[e.Role] = append(out[e.Role], e)
	}
	return out
}

// Duos returns each resolved duo pair exactly once.
func (s *Snapshot) Duos() [][2]Entry {
	var duos [][2]Entry
	for _, e := range s.Entries {
		if e.DuoID == 0 || e.DuoID <= e.PlayerID {
			continue
		}
		partner, ok := findPartner(s.Entries, e)
		if ok {
			duos = append(duos, [2]Entry{e, partner})
		}
	}
	return duos
}

func holdsPlayer(entries []Entry, playerID int64) bool {
	for _, e := range entries {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

// findPartner resolves the mutual duo entry of e, if it is present.
func findPartner(entries []Entry, e Entry) (Entry, bool) {
	for _, candidate := range entries {
		if candidate.PlayerID == e.DuoID && candidate.DuoID == e.PlayerID && candidate.ChannelID == e.ChannelID {
			return candidate, true
		}
	}
	return Entry{}, false
}
