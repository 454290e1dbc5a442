package hotset

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vitaliisemenov/timerd/internal/domain"
)

func timerAt(executeAt time.Time) domain.Timer {
	return domain.Timer{ID: uuid.New(), ExecuteAt: executeAt, Status: domain.StatusPending}
}

func TestHotSet_RebuildReplacesContents(t *testing.T) {
	hs := New()
	now := time.Now()

	a := timerAt(now.Add(time.Minute))
	hs.Rebuild([]domain.Timer{a})
	assert.Equal(t, 1, hs.Len())

	b := timerAt(now.Add(2 * time.Minute))
	hs.Rebuild([]domain.Timer{b})

	assert.Equal(t, 1, hs.Len(), "rebuild must fully replace, not merge")
	due := hs.Due(now.Add(3 * time.Minute))
	assert.Len(t, due, 1)
	assert.Equal(t, b.ID, due[0].ID)
}

func TestHotSet_DueOnlyReturnsPastOrEqual(t *testing.T) {
	hs := New()
	now := time.Now()

	due1 := timerAt(now.Add(-time.Second))
	due2 := timerAt(now)
	notDue := timerAt(now.Add(time.Second))
	hs.Rebuild([]domain.Timer{due1, due2, notDue})

	due := hs.Due(now)
	assert.Len(t, due, 2)
}

func TestHotSet_RemoveIsUnconditional(t *testing.T) {
	hs := New()
	a := timerAt(time.Now())
	hs.Rebuild([]domain.Timer{a})

	hs.Remove(a.ID)
	assert.Equal(t, 0, hs.Len())
	hs.Remove(a.ID) // already absent, must not panic
	assert.Equal(t, 0, hs.Len())
}

func TestHotSet_ConcurrentAccess(t *testing.T) {
	hs := New()
	now := time.Now()
	hs.Rebuild([]domain.Timer{timerAt(now), timerAt(now)})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hs.Due(time.Now())
			_ = hs.Len()
		}()
	}
	wg.Wait()
}
