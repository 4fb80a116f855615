package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJointQuorum_NeedsBothMajorities(t *testing.T) {
	q := NewJointQuorum([]string{"n1", "n2", "n3"}, []string{"n4", "n5"})
	require.NoError(t, q.Ack("n1"))
	require.NoError(t, q.Ack("n2"))
	select {
	case <-q.Reached():
		t.Fatal("reached with no new member acked")
	default:
	}

	require.NoError(t, q.Ack("n4"))
	select {
	case <-q.Reached():
		t.Fatal("one of two new members is not a majority")
	default:
	}

	require.NoError(t, q.Ack("n5"))
	<-q.Reached()
	assert.Equal(t, []string{"n1", "n2", "n4", "n5"}, q.Acked())
	assert.Error(t, q.Ack("n9"))
}

func TestConfigChanger_UnreachableNewMembers(t *testing.T) {
	old := []string{"n1", "n2", "n3"}
	q := NewJointQuorum(old, []string{"n4", "n5"})
	for _, v := range old {
		require.NoError(t, q.Ack(v))
	}

	members, err := RollbackOnTimeout{Timeout: 20 * time.Millisecond}.Change(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, old, members)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = WaitForJoint{}.Change(ctx, q)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "never committed")
}
