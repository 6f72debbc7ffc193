package ring

import (
	"testing"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(ids ...id.ReplicaID) *Table {
	t := NewTable(node.Peer{ID: ids[0], Address: "self:9400"})
	for _, rid := range ids[1:] {
		t.Add(Member{ID: rid, Address: rid.String() + ":9400"})
	}
	return t
}

func TestTable_MembersOrdered(t *testing.T) {
	tbl := newTable(500, 100, 900, 300)

	members := tbl.Members()
	require.Len(t, members, 4)
	for i := 1; i < len(members); i++ {
		assert.Less(t, members[i-1].ID, members[i].ID)
	}
}

func TestTable_Successor(t *testing.T) {
	tbl := newTable(100, 200, 300)

	tests := []struct {
		key  id.ReplicaID
		want id.ReplicaID
	}{
		{0, 100},
		{100, 100},
		{101, 200},
		{250, 300},
		{300, 300},
		{301, 100}, // wraps
		{^id.ReplicaID(0), 100},
	}

	for _, tt := range tests {
		m, ok := tbl.Successor(tt.key)
		require.True(t, ok)
		assert.Equal(t, tt.want, m.ID, "key=%d", tt.key)
	}
}

func TestTable_SuccessorSkipsDead(t *testing.T) {
	tbl := newTable(100, 200, 300)

	require.True(t, tbl.MarkDead(200))
	m, ok := tbl.Successor(150)
	require.True(t, ok)
	assert.Equal(t, id.ReplicaID(300), m.ID)

	require.True(t, tbl.MarkDead(300))
	m, ok = tbl.Successor(250)
	require.True(t, ok)
	assert.Equal(t, id.ReplicaID(100), m.ID, "wraps past dead members")

	require.True(t, tbl.MarkAlive(200))
	m, _ = tbl.Successor(150)
	assert.Equal(t, id.ReplicaID(200), m.ID)

	counts := tbl.MemberCounts()
	assert.Equal(t, 2, counts["ALIVE"])
	assert.Equal(t, 1, counts["DEAD"])
}

func TestTable_SelfIsPermanent(t *testing.T) {
	tbl := newTable(100, 200)

	assert.False(t, tbl.Remove(100))
	assert.False(t, tbl.MarkDead(100))
	assert.True(t, tbl.Remove(200))
	assert.False(t, tbl.Remove(200))

	m, ok := tbl.Successor(150)
	require.True(t, ok)
	assert.Equal(t, id.ReplicaID(100), m.ID)
}

func TestTable_AddReplacesSamePosition(t *testing.T) {
	tbl := newTable(100)
	tbl.Add(Member{ID: 200, Address: "a:1"})
	tbl.Add(Member{ID: 200, Address: "b:1"})

	m, ok := tbl.Get(200)
	require.True(t, ok)
	assert.Equal(t, "b:1", m.Address)
	assert.Len(t, tbl.Members(), 2)
}

func TestTable_SingleNodeOwnsEveryKey(t *testing.T) {
	tbl := NewTable(node.Peer{ID: id.HashString("only:9400"), Address: "only:9400"})

	for _, rid := range id.Derive("doc.txt", 4) {
		m, ok := tbl.Successor(rid)
		require.True(t, ok)
		assert.Equal(t, "only:9400", m.Address)
	}
}

func TestParseMember(t *testing.T) {
	m, err := ParseMember("10.0.0.2:9400")
	require.NoError(t, err)
	assert.Equal(t, id.HashString("10.0.0.2:9400"), m.ID)
	assert.Equal(t, "10.0.0.2:9400", m.Address)
	assert.Equal(t, StatusAlive, m.Status)

	m, err = ParseMember(" 42@10.0.0.3:9400 ")
	require.NoError(t, err)
	assert.Equal(t, id.ReplicaID(42), m.ID)
	assert.Equal(t, "10.0.0.3:9400", m.Address)

	for _, bad := range []string{"", "42@", "nope@10.0.0.4:9400"} {
		_, err := ParseMember(bad)
		assert.Error(t, err, "entry %q", bad)
	}
}
