package domain

import "time"

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// Presence outlives connections: it is never removed, only demoted.
type Presence struct {
	UserID     UserID
	LastSeenAt time.Time
	Groups     map[GroupID]struct{}
	Status     PresenceStatus
	UserData   UserData
}

// PresenceView is the read-only shape returned by queries.
type PresenceView struct {
	UserID     UserID         `json:"userId"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"lastSeenAt"`
	Groups     []GroupID      `json:"groups"`
	UserData   UserData       `json:"userData,omitempty"`
}
