package queue

import "time"

// Role is one of the fixed lanes a player can queue for.
type Role string

const (
	RoleTop     Role = "TOP"
	RoleJungle  Role = "JGL"
	RoleMid     Role = "MID"
	RoleBot     Role = "BOT"
	RoleSupport Role = "SUP"
)

// Roles returns the lanes in their canonical order, used for partitioning
// and for flattening snapshot seeds deterministically.
func Roles() []Role {
	return []Role{RoleTop, RoleJungle, RoleMid, RoleBot, RoleSupport}
}

func (r Role) Valid() bool {
	switch r {
	case RoleTop, RoleJungle, RoleMid, RoleBot, RoleSupport:
		return true
	}
	return false
}

// Entry is a player waiting for one role in one channel. A player may hold
// entries for several roles and several channels at once; the
// (ChannelID, PlayerID, Role) triple is unique.
type Entry struct {
	ChannelID int64
	PlayerID  int64
	ServerID  int64
	Role      Role
	Name      string

	// DuoID is the partner's player id when two players queue as a duo,
	// 0 when queuing solo. Links are mutual and the partner holds a
	// different role in the same channel.
	DuoID int64

	// QueuedAt orders the queue; re-queuing for the same role replaces it.
	QueuedAt time.Time

	// ReadyCheckID is the id of the active ready check the entry is part
	// of, empty otherwise.
	ReadyCheckID string
}

// InReadyCheck reports whether the entry is tagged by an active ready check.
func (e Entry) InReadyCheck() bool {
	return e.ReadyCheckID != ""
}
