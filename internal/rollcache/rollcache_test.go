package rollcache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

func roll(n int) engine.RollRecord {
	return engine.RollRecord{PlayerName: fmt.Sprintf("roll-%d", n)}
}

func names(recs []engine.RollRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.PlayerName)
	}
	return out
}

func TestAppendEvictsOldestPastCapacity(t *testing.T) {
	c := New(DefaultCapacity)
	for i := 1; i <= 21; i++ {
		c.Append("table-7", roll(i))
	}

	got, ok := c.Snapshot("table-7")
	require.True(t, ok)
	require.Len(t, got, 20)
	assert.NotContains(t, names(got), "roll-1")
	assert.Equal(t, "roll-2", got[0].PlayerName)
	assert.Equal(t, "roll-21", got[19].PlayerName)
}

func TestSnapshotKeepsRollOrder(t *testing.T) {
	c := New(5)
	for i := 1; i <= 12; i++ {
		c.Append("s1", roll(i))
	}
	got, _ := c.Snapshot("s1")
	assert.Equal(t, []string{"roll-8", "roll-9", "roll-10", "roll-11", "roll-12"}, names(got))
}

func TestSnapshotUnknownSession(t *testing.T) {
	c := New(0)
	got, ok := c.Snapshot("nobody")
	assert.False(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, DefaultCapacity, c.Capacity())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New(3)
	c.Append("s1", roll(1))
	got, _ := c.Snapshot("s1")
	got[0].PlayerName = "tampered"

	again, _ := c.Snapshot("s1")
	assert.Equal(t, "roll-1", again[0].PlayerName)
}

func TestClearKeepsSessionKnown(t *testing.T) {
	c := New(3)
	c.Append("s1", roll(1))
	c.Clear("s1")

	got, ok := c.Snapshot("s1")
	assert.True(t, ok)
	assert.Empty(t, got)
	assert.False(t, c.Seed("s1", []engine.RollRecord{roll(9)}), "cleared sessions are not reseeded")
}

func TestSeedOnlyOnce(t *testing.T) {
	c := New(2)
	assert.True(t, c.Seed("s1", []engine.RollRecord{roll(1), roll(2), roll(3)}))
	got, _ := c.Snapshot("s1")
	assert.Equal(t, []string{"roll-2", "roll-3"}, names(got))

	assert.False(t, c.Seed("s1", []engine.RollRecord{roll(7)}))
	got, _ = c.Snapshot("s1")
	assert.Equal(t, []string{"roll-2", "roll-3"}, names(got))
}

func TestForget(t *testing.T) {
	c := New(2)
	c.Append("s1", roll(1))
	c.Forget("s1")
	_, ok := c.Snapshot("s1")
	assert.False(t, ok)
}

func TestSessionsAreIsolated(t *testing.T) {
	c := New(2)
	c.Append("a", roll(1))
	c.Append("b", roll(2))
	a, _ := c.Snapshot("a")
	b, _ := c.Snapshot("b")
	assert.Equal(t, []string{"roll-1"}, names(a))
	assert.Equal(t, []string{"roll-2"}, names(b))
}

func TestConcurrentAppendNeverExceedsCapacity(t *testing.T) {
	c := New(DefaultCapacity)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Append("busy", roll(w*100+i))
			}
		}(w)
	}
	wg.Wait()
	got, _ := c.Snapshot("busy")
	assert.Len(t, got, DefaultCapacity)
}
