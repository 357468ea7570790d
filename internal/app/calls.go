package app

import (
	"cmp"
	"slices"
	"time"

	"github.com/dkeye/callhub/internal/domain"
)

type callEntry struct {
	call domain.IndividualCall
	seq  uint64
}

// CallTable holds ringing individual calls and active group calls.
// Not safe for concurrent use.
type CallTable struct {
	seq        uint64
	individual map[domain.CallID]*callEntry
	group      map[domain.GroupID]*domain.GroupCall
}

func NewCallTable() *CallTable {
	return &CallTable{
		individual: make(map[domain.CallID]*callEntry),
		group:      make(map[domain.GroupID]*domain.GroupCall),
	}
}

// AddIndividual stores call as given. Duplicates between the same pair are kept.
func (t *CallTable) AddIndividual(call domain.IndividualCall) {
	t.seq++
	t.individual[call.ID] = &callEntry{call: call, seq: t.seq}
}

func (t *CallTable) Individual(id domain.CallID) (domain.IndividualCall, bool) {
	e, ok := t.individual[id]
	if !ok {
		return domain.IndividualCall{}, false
	}
	return e.call, true
}

// FindPair returns the oldest call matching the pair. An empty gid matches any group.
func (t *CallTable) FindPair(gid domain.GroupID, caller, target domain.UserID) (domain.IndividualCall, bool) {
	var best *callEntry
	for _, e := range t.individual {
		c := e.call
		if c.Caller != caller || c.Target != target {
			continue
		}
		if gid != "" && c.GroupID != gid {
			continue
		}
		if best == nil || e.seq < best.seq {
			best = e
		}
	}
	if best == nil {
		return domain.IndividualCall{}, false
	}
	return best.call, true
}

// Resolve sets the terminal status and drops the call from the active set.
func (t *CallTable) Resolve(id domain.CallID, status domain.CallStatus) (domain.IndividualCall, bool) {
	e, ok := t.individual[id]
	if !ok {
		return domain.IndividualCall{}, false
	}
	delete(t.individual, id)
	e.call.Status = status
	return e.call, true
}

// ActiveFor lists calls of a group, oldest first.
func (t *CallTable) ActiveFor(gid domain.GroupID) []domain.IndividualCall {
	entries := make([]*callEntry, 0)
	for _, e := range t.individual {
		if e.call.GroupID == gid {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b *callEntry) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.IndividualCall, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.call)
	}
	return out
}

// PurgeBefore drops every call created before cutoff, whatever its status.
func (t *CallTable) PurgeBefore(cutoff time.Time) []domain.IndividualCall {
	var out []domain.IndividualCall
	for id, e := range t.individual {
		if e.call.CreatedAt.Before(cutoff) {
			out = append(out, e.call)
			delete(t.individual, id)
		}
	}
	return out
}

func (t *CallTable) IndividualCount() int { return len(t.individual) }

// StartGroup overwrites any call already tracked for the group.
func (t *CallTable) StartGroup(gid domain.GroupID, caller domain.UserID, callType domain.CallType, at time.Time) *domain.GroupCall {
	gc := domain.NewGroupCall(gid, caller, callType, at)
	t.group[gid] = gc
	return gc
}

// JoinGroup adds uid to the group's call. Returns false when no call is tracked.
func (t *CallTable) JoinGroup(gid domain.GroupID, uid domain.UserID) (*domain.GroupCall, bool) {
	gc, ok := t.group[gid]
	if !ok {
		return nil, false
	}
	gc.Participants[uid] = struct{}{}
	return gc, true
}

// LeaveGroup removes uid and deletes the call once nobody is left.
// The returned call is nil when it was deleted or never existed.
func (t *CallTable) LeaveGroup(gid domain.GroupID, uid domain.UserID) (*domain.GroupCall, bool) {
	gc, ok := t.group[gid]
	if !ok {
		return nil, false
	}
	delete(gc.Participants, uid)
	if len(gc.Participants) == 0 {
		delete(t.group, gid)
		return nil, true
	}
	return gc, true
}

// LeaveAllGroups drops uid from every group call it takes part in.
func (t *CallTable) LeaveAllGroups(uid domain.UserID) []domain.GroupID {
	var out []domain.GroupID
	for gid, gc := range t.group {
		if _, ok := gc.Participants[uid]; !ok {
			continue
		}
		out = append(out, gid)
		delete(gc.Participants, uid)
		if len(gc.Participants) == 0 {
			delete(t.group, gid)
		}
	}
	slices.Sort(out)
	return out
}

func (t *CallTable) EndGroup(gid domain.GroupID) bool {
	_, ok := t.group[gid]
	delete(t.group, gid)
	return ok
}

func (t *CallTable) Group(gid domain.GroupID) (domain.GroupCallView, bool) {
	gc, ok := t.group[gid]
	if !ok {
		return domain.GroupCallView{}, false
	}
	return gc.View(), true
}

// GroupCalls lists active group calls. An empty gid lists all of them.
func (t *CallTable) GroupCalls(gid domain.GroupID) []domain.GroupCallView {
	out := make([]domain.GroupCallView, 0)
	for id, gc := range t.group {
		if gid != "" && id != gid {
			continue
		}
		out = append(out, gc.View())
	}
	slices.SortFunc(out, func(a, b domain.GroupCallView) int {
		return cmp.Compare(a.GroupID, b.GroupID)
	})
	return out
}

// PurgeEmptyGroups deletes group calls without participants.
func (t *CallTable) PurgeEmptyGroups() []domain.GroupID {
	var out []domain.GroupID
	for gid, gc := range t.group {
		if len(gc.Participants) == 0 {
			delete(t.group, gid)
			out = append(out, gid)
		}
	}
	slices.Sort(out)
	return out
}
