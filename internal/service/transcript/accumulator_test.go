package transcript

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_AppendKeepsOrderAndDuplicates(t *testing.T) {
	acc := New(0)
	now := time.Now()

	acc.Append(RoleAssistant, "Hi, how can I help?", now)
	acc.Append(RoleAssistant, "Hi, how can I help?", now.Add(time.Millisecond))
	acc.Append(RoleCaller, "I need a bed", now.Add(2*time.Millisecond))

	got := acc.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, RoleAssistant, got[0].Role)
	assert.Equal(t, got[0].Text, got[1].Text)
	assert.Equal(t, RoleCaller, got[2].Role)
}

func TestAccumulator_SnapshotIsACopy(t *testing.T) {
	acc := New(0)
	acc.Append(RoleCaller, "hello", time.Now())

	snap := acc.Snapshot()
	snap[0].Text = "mutated"
	acc.Append(RoleAssistant, "hi", time.Now())

	assert.Equal(t, "hello", acc.Snapshot()[0].Text)
	assert.Len(t, snap, 1)
}

func TestAccumulator_Bound(t *testing.T) {
	acc := New(2)
	assert.True(t, acc.Append(RoleCaller, "one", time.Now()))
	assert.True(t, acc.Append(RoleCaller, "two", time.Now()))
	assert.False(t, acc.Append(RoleCaller, "three", time.Now()))

	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, 1, acc.Dropped())
}

func TestAccumulator_ConcurrentAppendAndSnapshot(t *testing.T) {
	acc := New(0)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				acc.Append(RoleCaller, fmt.Sprintf("%d-%d", w, i), time.Now())
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = acc.Snapshot()
		}
	}()
	wg.Wait()

	assert.Equal(t, 400, acc.Len())
}
