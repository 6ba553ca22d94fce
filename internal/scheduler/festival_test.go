package scheduler

import (
	"context"
	"testing"
	"time"

	"festival-ticketing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFestivalStore struct {
	statuses   map[int64]models.FestivalStatus
	festivals  []models.Festival
	triggers   *fakeTriggerStore
	bulkCalled bool
}

func (s *fakeFestivalStore) TransitionFestivalStatus(_ context.Context, festivalID int64, target models.FestivalStatus) error {
	current, ok := s.statuses[festivalID]
	if !ok {
		return models.ErrFestivalNotFound
	}
	if !current.CanTransitionTo(target) {
		return models.ErrInvalidStatusTransition
	}
	s.statuses[festivalID] = target
	return nil
}

func (s *fakeFestivalStore) BulkAdvanceFestivalStatuses(_ context.Context, _ time.Time) error {
	s.bulkCalled = true
	return nil
}

func (s *fakeFestivalStore) ListUnfinishedFestivals(_ context.Context) ([]models.Festival, error) {
	return s.festivals, nil
}

func (s *fakeFestivalStore) DeleteTransition(_ context.Context, subjectType string, subjectID int64, eventType string) error {
	if s.triggers != nil {
		s.triggers.remove(subjectType, subjectID, eventType)
	}
	return nil
}

func TestFestivalTransitionsFireInOrder(t *testing.T) {
	store := &fakeFestivalStore{statuses: map[int64]models.FestivalStatus{
		1: models.FestivalStatusUpcoming,
	}}
	triggers := newFakeTriggerStore()
	engine := NewEngine(triggers, time.Millisecond, 100)
	sched := NewFestivalScheduler(store, engine)

	require.NoError(t, sched.ScheduleFestival(context.Background(), models.FestivalScheduleMessage{
		FestivalID: 1,
		StartTime:  time.Now().Add(-2 * time.Minute),
		EndTime:    time.Now().Add(time.Hour),
	}))

	require.NoError(t, engine.poll(context.Background()))
	assert.Equal(t, models.FestivalStatusOngoing, store.statuses[1])
	// The end trigger is still waiting.
	assert.Equal(t, 1, triggers.count())
}

func TestFestivalTransitionPastTargetIsHarmless(t *testing.T) {
	// Startup recovery already bulk-advanced this festival to COMPLETED.
	store := &fakeFestivalStore{statuses: map[int64]models.FestivalStatus{
		1: models.FestivalStatusCompleted,
	}}
	triggers := newFakeTriggerStore()
	engine := NewEngine(triggers, time.Millisecond, 100)
	sched := NewFestivalScheduler(store, engine)

	require.NoError(t, sched.ScheduleFestival(context.Background(), models.FestivalScheduleMessage{
		FestivalID: 1,
		StartTime:  time.Now().Add(-2 * time.Hour),
		EndTime:    time.Now().Add(-time.Hour),
	}))

	require.NoError(t, engine.poll(context.Background()))
	assert.Equal(t, models.FestivalStatusCompleted, store.statuses[1])
	assert.Equal(t, 0, triggers.count())
}

func TestRecoverAllReregistersUnfinishedFestivals(t *testing.T) {
	store := &fakeFestivalStore{
		statuses: map[int64]models.FestivalStatus{
			1: models.FestivalStatusUpcoming,
			2: models.FestivalStatusOngoing,
		},
		festivals: []models.Festival{
			{ID: 1, StartTime: time.Now().Add(time.Hour), EndTime: time.Now().Add(2 * time.Hour), Status: models.FestivalStatusUpcoming},
			{ID: 2, StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour), Status: models.FestivalStatusOngoing},
		},
	}
	triggers := newFakeTriggerStore()
	store.triggers = triggers
	engine := NewEngine(triggers, time.Millisecond, 100)
	sched := NewFestivalScheduler(store, engine)

	// Festival 2 already started, but its start trigger survived the restart.
	_, err := triggers.InsertTransition(context.Background(), &models.ScheduledTransition{
		SubjectType: SubjectFestival,
		SubjectID:   2,
		EventType:   EventFestivalStart,
		FireAt:      time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, sched.RecoverAll(context.Background()))

	assert.True(t, store.bulkCalled)
	// Festival 1 gets start and end, festival 2 only its end; the stale
	// start trigger was dropped. Registration is idempotent on re-run.
	assert.Equal(t, 3, triggers.count())
	require.NoError(t, sched.RecoverAll(context.Background()))
	assert.Equal(t, 3, triggers.count())
}
