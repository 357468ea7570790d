package app

import (
	"testing"
	"time"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ringing(id domain.CallID, caller, target domain.UserID, at time.Time) domain.IndividualCall {
	return domain.IndividualCall{
		ID:        id,
		GroupID:   "g1",
		Caller:    caller,
		Target:    target,
		CallType:  domain.CallVideo,
		Status:    domain.CallRinging,
		CreatedAt: at,
	}
}

func TestCallTableDuplicatesAndPairLookup(t *testing.T) {
	ct := NewCallTable()
	now := time.Now()
	ct.AddIndividual(ringing("c1", "alice", "bob", now))
	ct.AddIndividual(ringing("c2", "alice", "bob", now))

	assert.Equal(t, 2, ct.IndividualCount())

	got, ok := ct.FindPair("g1", "alice", "bob")
	require.True(t, ok)
	assert.Equal(t, domain.CallID("c1"), got.ID)

	got, ok = ct.FindPair("", "alice", "bob")
	require.True(t, ok)
	assert.Equal(t, domain.CallID("c1"), got.ID)

	_, ok = ct.FindPair("g2", "alice", "bob")
	assert.False(t, ok)
	_, ok = ct.FindPair("g1", "bob", "alice")
	assert.False(t, ok)

	active := ct.ActiveFor("g1")
	require.Len(t, active, 2)
	assert.Equal(t, domain.CallID("c1"), active[0].ID)
}

func TestCallTableResolveRemoves(t *testing.T) {
	ct := NewCallTable()
	ct.AddIndividual(ringing("c1", "alice", "bob", time.Now()))

	call, ok := ct.Resolve("c1", domain.CallAccepted)
	require.True(t, ok)
	assert.Equal(t, domain.CallAccepted, call.Status)
	assert.Equal(t, domain.CallVideo, call.CallType)

	_, ok = ct.Resolve("c1", domain.CallDeclined)
	assert.False(t, ok)
	assert.Empty(t, ct.ActiveFor("g1"))
}

func TestCallTablePurgeBefore(t *testing.T) {
	ct := NewCallTable()
	now := time.Now()
	ct.AddIndividual(ringing("old", "alice", "bob", now.Add(-11*time.Minute)))
	ct.AddIndividual(ringing("new", "alice", "bob", now.Add(-9*time.Minute)))

	purged := ct.PurgeBefore(now.Add(-10 * time.Minute))
	require.Len(t, purged, 1)
	assert.Equal(t, domain.CallID("old"), purged[0].ID)

	_, ok := ct.Individual("new")
	assert.True(t, ok)
}

func TestCallTableGroupLifecycle(t *testing.T) {
	ct := NewCallTable()
	now := time.Now()

	_, ok := ct.JoinGroup("g1", "bob")
	assert.False(t, ok, "join without a call is not tracked")

	ct.StartGroup("g1", "alice", domain.CallAudio, now)
	gc, ok := ct.JoinGroup("g1", "bob")
	require.True(t, ok)
	_, _ = ct.JoinGroup("g1", "bob")
	assert.Equal(t, []domain.UserID{"alice", "bob"}, gc.ParticipantList())

	gc, ok = ct.LeaveGroup("g1", "alice")
	require.True(t, ok)
	require.NotNil(t, gc)

	gc, ok = ct.LeaveGroup("g1", "bob")
	assert.True(t, ok)
	assert.Nil(t, gc)
	_, ok = ct.Group("g1")
	assert.False(t, ok)
}

func TestCallTableStartGroupOverwrites(t *testing.T) {
	ct := NewCallTable()
	now := time.Now()
	ct.StartGroup("g1", "alice", domain.CallAudio, now)
	ct.JoinGroup("g1", "bob")
	ct.StartGroup("g1", "carol", domain.CallVideo, now)

	v, ok := ct.Group("g1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("carol"), v.Caller)
	assert.Equal(t, []domain.UserID{"carol"}, v.Participants)
	assert.Equal(t, domain.CallVideo, v.CallType)
}

func TestCallTableLeaveAllAndPurgeEmpty(t *testing.T) {
	ct := NewCallTable()
	now := time.Now()
	ct.StartGroup("g1", "alice", domain.CallAudio, now)
	ct.StartGroup("g2", "bob", domain.CallAudio, now)
	ct.JoinGroup("g2", "alice")

	assert.Equal(t, []domain.GroupID{"g1", "g2"}, ct.LeaveAllGroups("alice"))
	assert.Len(t, ct.GroupCalls(""), 1)

	ct.LeaveGroup("g2", "bob")
	assert.Empty(t, ct.PurgeEmptyGroups())

	ct.StartGroup("g3", "dave", domain.CallAudio, now)
	ct.group["g3"].Participants = map[domain.UserID]struct{}{}
	assert.Equal(t, []domain.GroupID{"g3"}, ct.PurgeEmptyGroups())
	assert.False(t, ct.EndGroup("g2"))
}
