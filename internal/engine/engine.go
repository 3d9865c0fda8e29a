// Package engine owns the in-memory progress snapshot and the only code
// paths allowed to change it. Every applied mutation is written to the local
// store before it is announced to subscribers; nothing here waits on the
// network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/progress-sync/internal/catalog"
	"github.com/example/progress-sync/internal/clock"
	"github.com/example/progress-sync/internal/progress"
	"github.com/example/progress-sync/internal/reconcile"
	"github.com/example/progress-sync/internal/storage"
)

// DefaultStoreKey is the local store key holding the snapshot.
const DefaultStoreKey = "progress:snapshot"

// XP granted by the fixed-value activities.
const (
	LessonXP   = 25
	ScenarioXP = 20
	ProblemXP  = 15
	QuizXPPer  = 10
)

// Listener receives the snapshot produced by an applied mutation.
type Listener func(progress.Snapshot)

// Engine serializes all progress mutations for one user on one device.
type Engine struct {
	mu    sync.Mutex
	state progress.Snapshot

	local    storage.Local
	catalog  *catalog.Catalog
	dates    clock.DateClock
	logger   zerolog.Logger
	key      string
	deviceID string
	now      func() time.Time

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// Option configures an Engine.
type Option func(*Engine)

// WithStoreKey overrides the local store key.
func WithStoreKey(key string) Option {
	return func(e *Engine) {
		e.key = key
	}
}

// WithDeviceID stamps locally written envelopes with the device id.
func WithDeviceID(id string) Option {
	return func(e *Engine) {
		e.deviceID = id
	}
}

// New loads the local snapshot and returns an engine ready for mutations.
// A missing or unreadable payload starts from an empty snapshot; a failing
// store is reported as ErrPersistence.
func New(ctx context.Context, local storage.Local, cat *catalog.Catalog, dates clock.DateClock, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		local:     local,
		catalog:   cat,
		dates:     dates,
		logger:    logger,
		key:       DefaultStoreKey,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(e)
	}

	state, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	e.state = state
	return e, nil
}

func (e *Engine) load(ctx context.Context) (progress.Snapshot, error) {
	data, err := e.local.Get(ctx, e.key)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Info().Str("key", e.key).Msg("no local snapshot; starting fresh")
		return progress.New(), nil
	}
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("%w: load local snapshot: %w", progress.ErrPersistence, err)
	}

	env, err := progress.Decode(data)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", e.key).Msg("local snapshot unreadable; starting fresh")
		return progress.New(), nil
	}
	return env.Snapshot, nil
}

// Subscribe registers a listener for applied mutations and returns a function
// that removes it.
func (e *Engine) Subscribe(l Listener) func() {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		delete(e.listeners, id)
	}
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() progress.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Catalog returns the catalog the engine validates against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// AddXP credits amount XP and counts as today's streak activity.
func (e *Engine) AddXP(ctx context.Context, amount int) (progress.Snapshot, error) {
	return e.apply(ctx, "add_xp", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if amount <= 0 {
			return false, fmt.Errorf("%w: xp amount must be positive, got %d", progress.ErrInvalidArgument, amount)
		}
		awardXP(s, amount, today)
		return true, nil
	})
}

// CompleteLesson records a lesson once, advances the stage and credits LessonXP.
func (e *Engine) CompleteLesson(ctx context.Context, id int) (progress.Snapshot, error) {
	return e.apply(ctx, "complete_lesson", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if !e.catalog.HasLesson(id) {
			return false, fmt.Errorf("%w: unknown lesson %d", progress.ErrInvalidArgument, id)
		}
		if s.CompletedLessons.Has(id) {
			return false, nil
		}
		s.CompletedLessons = s.CompletedLessons.With(id)
		s.CurrentStage = max(s.CurrentStage, e.catalog.StageFor(s.CompletedLessons))
		awardXP(s, LessonXP, today)
		return true, nil
	})
}

// CompleteScenario records a scenario once and credits ScenarioXP.
func (e *Engine) CompleteScenario(ctx context.Context, id int) (progress.Snapshot, error) {
	return e.apply(ctx, "complete_scenario", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if !e.catalog.HasScenario(id) {
			return false, fmt.Errorf("%w: unknown scenario %d", progress.ErrInvalidArgument, id)
		}
		if s.CompletedScenarios.Has(id) {
			return false, nil
		}
		s.CompletedScenarios = s.CompletedScenarios.With(id)
		awardXP(s, ScenarioXP, today)
		return true, nil
	})
}

// RecordQuiz appends a quiz attempt and credits score×QuizXPPer XP. A zero
// score is logged without XP or streak credit.
func (e *Engine) RecordQuiz(ctx context.Context, score, total int) (progress.Snapshot, error) {
	return e.apply(ctx, "record_quiz", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if total < 1 || score < 0 || score > total {
			return false, fmt.Errorf("%w: quiz score %d/%d", progress.ErrInvalidArgument, score, total)
		}
		s.QuizScores = append(s.QuizScores, progress.QuizScore{Date: today, Score: score, Total: total})
		if score > 0 {
			awardXP(s, score*QuizXPPer, today)
		}
		return true, nil
	})
}

// SubmitProblem credits ProblemXP for the first submission of the day.
func (e *Engine) SubmitProblem(ctx context.Context) (progress.Snapshot, error) {
	return e.apply(ctx, "submit_problem", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if s.SubmittedProblems.Has(today) {
			return false, nil
		}
		s.SubmittedProblems = s.SubmittedProblems.With(today)
		awardXP(s, ProblemXP, today)
		return true, nil
	})
}

// MergeRemote folds a remote snapshot into local state and persists the
// result locally. A nil remote (absent or unreadable) keeps local state.
// Subscribers are not notified: the caller owns pushing the merged snapshot
// back.
func (e *Engine) MergeRemote(ctx context.Context, remote *progress.Snapshot) progress.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.state.XP
	e.state = reconcile.MergeOptional(&e.state, remote)
	e.persistLocked(ctx, "merge_remote")
	mutationsTotal.WithLabelValues("merge_remote", "applied").Inc()

	e.logger.Info().
		Int("xp_before", before).
		Int("xp", e.state.XP).
		Int("lessons", len(e.state.CompletedLessons)).
		Msg("merged remote snapshot")
	return e.state.Clone()
}

type mutation func(s *progress.Snapshot, today progress.Date) (changed bool, err error)

// apply runs fn against a copy of the state so a rejected mutation leaves
// nothing behind, then commits, persists and notifies.
func (e *Engine) apply(ctx context.Context, op string, fn mutation) (progress.Snapshot, error) {
	e.mu.Lock()
	next := e.state.Clone()
	xpBefore := next.XP

	changed, err := fn(&next, e.dates.Today())
	if err != nil {
		e.mu.Unlock()
		mutationsTotal.WithLabelValues(op, "rejected").Inc()
		e.logger.Debug().Err(err).Str("op", op).Msg("mutation rejected")
		return progress.Snapshot{}, err
	}
	if !changed {
		current := e.state.Clone()
		e.mu.Unlock()
		mutationsTotal.WithLabelValues(op, "noop").Inc()
		return current, nil
	}

	e.state = next
	e.persistLocked(ctx, op)
	out := e.state.Clone()
	e.mu.Unlock()

	mutationsTotal.WithLabelValues(op, "applied").Inc()
	if gained := out.XP - xpBefore; gained > 0 {
		xpAwarded.Add(float64(gained))
	}
	e.emit(out)
	return out, nil
}

// persistLocked writes the full snapshot. A failure keeps the in-memory
// change; the next mutation rewrites everything.
func (e *Engine) persistLocked(ctx context.Context, op string) {
	data, err := progress.EncodeEnvelope(progress.Envelope{
		Snapshot:  e.state,
		DeviceID:  e.deviceID,
		UpdatedAt: e.now().UTC(),
	})
	if err == nil {
		err = e.local.Set(ctx, e.key, data)
	}
	if err != nil {
		localWriteFailures.Inc()
		e.logger.Error().
			Err(fmt.Errorf("%w: %w", progress.ErrPersistence, err)).
			Str("op", op).
			Msg("local snapshot write failed")
	}
}

func (e *Engine) emit(s progress.Snapshot) {
	e.listenersMu.RLock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.listenersMu.RUnlock()

	for _, l := range listeners {
		l(s.Clone())
	}
}

func awardXP(s *progress.Snapshot, amount int, today progress.Date) {
	s.XP += amount
	recordActivity(s, today)
}

// recordActivity applies the streak transition for an activity on today. A
// today earlier than the recorded activity (clock moved back, or a merge
// from a device ahead of us) is treated as already credited.
func recordActivity(s *progress.Snapshot, today progress.Date) {
	if today.IsZero() || !s.LastActivity.Before(today) {
		return
	}
	if s.LastActivity == today.AddDays(-1) {
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 1
	}
	s.LongestStreak = max(s.LongestStreak, s.CurrentStreak)
	s.LastActivity = today
}
