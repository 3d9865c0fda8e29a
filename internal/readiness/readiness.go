// Package readiness projects a progress snapshot onto bounded competency
// scores. Scores are recomputed on every read and never stored.
package readiness

import (
	"math"

	"github.com/example/progress-sync/internal/catalog"
	"github.com/example/progress-sync/internal/progress"
)

const (
	problemPoints     = 5
	recentQuizWindow  = 10
	consistencyTarget = 14
)

// Report holds one 0..100 score per dimension plus their mean.
type Report struct {
	ProblemSolving int `json:"problemSolving"`
	Knowledge      int `json:"knowledge"`
	Practical      int `json:"practical"`
	Coverage       int `json:"coverage"`
	Consistency    int `json:"consistency"`
	Overall        int `json:"overall"`
}

// Scorer computes reports against a catalog's content sizes.
type Scorer struct {
	catalog *catalog.Catalog
}

// NewScorer returns a scorer for cat.
func NewScorer(cat *catalog.Catalog) Scorer {
	return Scorer{catalog: cat}
}

// Score computes the report for s.
func (sc Scorer) Score(s progress.Snapshot) Report {
	r := Report{
		ProblemSolving: clamp(float64(len(s.SubmittedProblems) * problemPoints)),
		Knowledge:      clamp(recentQuizAverage(s.QuizScores)),
		Practical:      clamp(ratio(sc.countKnown(s.CompletedScenarios, sc.catalog.HasScenario), sc.catalog.ScenarioCount())),
		Coverage:       clamp(ratio(sc.countKnown(s.CompletedLessons, sc.catalog.HasLesson), sc.catalog.LessonCount())),
		Consistency:    clamp(float64(s.CurrentStreak) * 100 / consistencyTarget),
	}
	r.Overall = clamp(float64(r.ProblemSolving+r.Knowledge+r.Practical+r.Coverage+r.Consistency) / 5)
	return r
}

// countKnown ignores ids the catalog no longer lists.
func (sc Scorer) countKnown(ids progress.IntSet, known func(int) bool) int {
	n := 0
	for _, id := range ids {
		if known(id) {
			n++
		}
	}
	return n
}

func recentQuizAverage(log []progress.QuizScore) float64 {
	if len(log) > recentQuizWindow {
		log = log[len(log)-recentQuizWindow:]
	}
	var sum float64
	var n int
	for _, q := range log {
		if q.Total <= 0 {
			continue
		}
		sum += float64(q.Score) * 100 / float64(q.Total)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func ratio(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) * 100 / float64(total)
}

func clamp(v float64) int {
	return int(math.Round(math.Min(100, math.Max(0, v))))
}
