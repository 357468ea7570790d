package app

import (
	"cmp"
	"slices"
	"time"

	"github.com/dkeye/callhub/internal/domain"
)

// PresenceTable tracks best-effort online status. Records are never deleted.
// Not safe for concurrent use.
type PresenceTable struct {
	records   map[domain.UserID]*domain.Presence
	threshold time.Duration
}

func NewPresenceTable(threshold time.Duration) *PresenceTable {
	return &PresenceTable{
		records:   make(map[domain.UserID]*domain.Presence),
		threshold: threshold,
	}
}

func (p *PresenceTable) MarkOnline(uid domain.UserID, gid domain.GroupID, data domain.UserData, now time.Time) {
	rec, ok := p.records[uid]
	if !ok {
		rec = &domain.Presence{UserID: uid, Groups: make(map[domain.GroupID]struct{})}
		p.records[uid] = rec
	}
	rec.LastSeenAt = now
	rec.Groups[gid] = struct{}{}
	rec.Status = domain.StatusOnline
	if len(data) > 0 {
		rec.UserData = data
	}
}

// Seen refreshes lastSeenAt for a known user and marks it online.
func (p *PresenceTable) Seen(uid domain.UserID, now time.Time) bool {
	rec, ok := p.records[uid]
	if !ok {
		return false
	}
	rec.LastSeenAt = now
	rec.Status = domain.StatusOnline
	return true
}

// MarkOffline reports whether the status changed.
func (p *PresenceTable) MarkOffline(uid domain.UserID) bool {
	rec, ok := p.records[uid]
	if !ok || rec.Status == domain.StatusOffline {
		return false
	}
	rec.Status = domain.StatusOffline
	return true
}

func (p *PresenceTable) Get(uid domain.UserID) (domain.PresenceView, bool) {
	rec, ok := p.records[uid]
	if !ok {
		return domain.PresenceView{}, false
	}
	return view(rec), true
}

// Online lists users considered online at now. An empty gid matches every group.
func (p *PresenceTable) Online(gid domain.GroupID, now time.Time) []domain.PresenceView {
	out := make([]domain.PresenceView, 0)
	for _, rec := range p.records {
		if rec.Status != domain.StatusOnline || now.Sub(rec.LastSeenAt) >= p.threshold {
			continue
		}
		if gid != "" {
			if _, ok := rec.Groups[gid]; !ok {
				continue
			}
		}
		out = append(out, view(rec))
	}
	slices.SortFunc(out, func(a, b domain.PresenceView) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}

// Expire demotes records not seen within the threshold and returns them.
func (p *PresenceTable) Expire(now time.Time) []domain.UserID {
	var out []domain.UserID
	for uid, rec := range p.records {
		if rec.Status == domain.StatusOnline && now.Sub(rec.LastSeenAt) >= p.threshold {
			rec.Status = domain.StatusOffline
			out = append(out, uid)
		}
	}
	slices.Sort(out)
	return out
}

func (p *PresenceTable) OnlineCount(now time.Time) int {
	return len(p.Online("", now))
}

func view(rec *domain.Presence) domain.PresenceView {
	groups := make([]domain.GroupID, 0, len(rec.Groups))
	for g := range rec.Groups {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	return domain.PresenceView{
		UserID:     rec.UserID,
		Status:     rec.Status,
		LastSeenAt: rec.LastSeenAt,
		Groups:     groups,
		UserData:   rec.UserData,
	}
}
