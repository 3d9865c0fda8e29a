package progress

import (
	"slices"
	"time"
)

// DateLayout is the calendar-date encoding used for every date-stamped field.
const DateLayout = "2006-01-02"

// DailyCycleLength is the number of consecutive login days in one daily-reward cycle.
const DailyCycleLength = 7

// Date is a local calendar date encoded as DateLayout. The empty value means
// "never" and sorts before every real date.
type Date string

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// ParseDate validates s as a calendar date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", err
	}
	return Date(s), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == "" }

// Before reports whether d is strictly earlier than other. Unset dates are
// earliest.
func (d Date) Before(other Date) bool { return d < other }

// AddDays shifts the date by n calendar days. Unset or malformed dates stay unset.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return ""
	}
	return DateOf(t.AddDate(0, 0, n))
}

// LaterDate returns the later of two dates.
func LaterDate(a, b Date) Date {
	if a.Before(b) {
		return b
	}
	return a
}

// IntSet is a sorted set of integers. Membership is the only observable
// property; the sorted encoding keeps payloads deterministic.
type IntSet []int

// NewIntSet builds a set from arbitrary values.
func NewIntSet(values ...int) IntSet {
	out := append(IntSet{}, values...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports membership.
func (s IntSet) Has(v int) bool {
	_, ok := slices.BinarySearch(s, v)
	return ok
}

// With returns a set containing v in addition to the receiver's members.
func (s IntSet) With(v int) IntSet {
	idx, ok := slices.BinarySearch(s, v)
	if ok {
		return s.clone()
	}
	out := make(IntSet, 0, len(s)+1)
	out = append(out, s[:idx]...)
	out = append(out, v)
	return append(out, s[idx:]...)
}

// Union returns the members of both sets.
func (s IntSet) Union(other IntSet) IntSet {
	return NewIntSet(append(s.clone(), other...)...)
}

// CountBetween counts members in the inclusive range [from, to].
func (s IntSet) CountBetween(from, to int) int {
	n := 0
	for _, v := range s {
		if v >= from && v <= to {
			n++
		}
	}
	return n
}

func (s IntSet) clone() IntSet {
	return append(IntSet{}, s...)
}

// DateSet is a sorted set of calendar dates.
type DateSet []Date

// NewDateSet builds a set from arbitrary dates, dropping unset entries.
func NewDateSet(values ...Date) DateSet {
	out := make(DateSet, 0, len(values))
	for _, v := range values {
		if !v.IsZero() {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports membership.
func (s DateSet) Has(d Date) bool {
	_, ok := slices.BinarySearch(s, d)
	return ok
}

// With returns a set containing d in addition to the receiver's members.
func (s DateSet) With(d Date) DateSet {
	return NewDateSet(append(append(DateSet{}, s...), d)...)
}

// Union returns the members of both sets.
func (s DateSet) Union(other DateSet) DateSet {
	return NewDateSet(append(append(DateSet{}, s...), other...)...)
}

// QuizScore is one entry of the append-only quiz attempt log.
type QuizScore struct {
	Date  Date `json:"date"`
	Score int  `json:"score"`
	Total int  `json:"total"`
}

// Compare orders quiz entries by date, then score, then total.
func (q QuizScore) Compare(other QuizScore) int {
	switch {
	case q.Date < other.Date:
		return -1
	case q.Date > other.Date:
		return 1
	case q.Score != other.Score:
		return q.Score - other.Score
	default:
		return q.Total - other.Total
	}
}

// Snapshot is the complete persisted progress record for one user.
type Snapshot struct {
	SchemaVersion int `json:"schemaVersion"`

	XP            int  `json:"xp"`
	CurrentStreak int  `json:"currentStreak"`
	LongestStreak int  `json:"longestStreak"`
	LastActivity  Date `json:"lastActivityDate"`
	CurrentStage  int  `json:"currentStage"`

	CompletedLessons   IntSet      `json:"completedLessonIds"`
	CompletedScenarios IntSet      `json:"completedScenarioIds"`
	QuizScores         []QuizScore `json:"quizScores"`
	SubmittedProblems  DateSet     `json:"submittedProblemDates"`

	ClaimedDailyRewards  IntSet `json:"claimedDailyRewardDays"`
	ClaimedWeeklyRewards IntSet `json:"claimedWeeklyRewardIndices"`

	TotalLogins     int  `json:"totalLogins"`
	LastLogin       Date `json:"lastLoginDate"`
	WeeklyProgress  int  `json:"weeklyProgress"`
	DailyCycleStart int  `json:"dailyCycleStart"`
}

// New returns the snapshot of a user who has never done anything.
func New() Snapshot {
	return Snapshot{
		SchemaVersion:        CurrentSchemaVersion,
		CurrentStage:         1,
		CompletedLessons:     IntSet{},
		CompletedScenarios:   IntSet{},
		QuizScores:           []QuizScore{},
		SubmittedProblems:    DateSet{},
		ClaimedDailyRewards:  IntSet{},
		ClaimedWeeklyRewards: IntSet{},
	}
}

// Clone returns a deep copy that shares no backing arrays with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.CompletedLessons = append(IntSet{}, s.CompletedLessons...)
	out.CompletedScenarios = append(IntSet{}, s.CompletedScenarios...)
	out.QuizScores = append([]QuizScore{}, s.QuizScores...)
	out.SubmittedProblems = append(DateSet{}, s.SubmittedProblems...)
	out.ClaimedDailyRewards = append(IntSet{}, s.ClaimedDailyRewards...)
	out.ClaimedWeeklyRewards = append(IntSet{}, s.ClaimedWeeklyRewards...)
	return out
}

// Normalize repairs values a well-behaved writer never produces: negative
// counters, a stage below one, unsorted sets, out-of-range daily claims and a
// longest streak below the current one.
func (s Snapshot) Normalize() Snapshot {
	out := s.Clone()
	out.SchemaVersion = CurrentSchemaVersion
	out.XP = max(out.XP, 0)
	out.CurrentStreak = max(out.CurrentStreak, 0)
	out.LongestStreak = max(out.LongestStreak, out.CurrentStreak)
	out.CurrentStage = max(out.CurrentStage, 1)
	out.TotalLogins = max(out.TotalLogins, 0)
	out.DailyCycleStart = max(out.DailyCycleStart, 0)
	out.WeeklyProgress = min(max(out.WeeklyProgress, 0), DailyCycleLength)

	out.CompletedLessons = NewIntSet(out.CompletedLessons...)
	out.CompletedScenarios = NewIntSet(out.CompletedScenarios...)
	out.SubmittedProblems = NewDateSet(out.SubmittedProblems...)
	out.ClaimedWeeklyRewards = NewIntSet(out.ClaimedWeeklyRewards...)
	// Attempts carry no time of day, so only the multiset is meaningful.
	slices.SortStableFunc(out.QuizScores, QuizScore.Compare)

	daily := IntSet{}
	for _, d := range NewIntSet(out.ClaimedDailyRewards...) {
		if d >= 1 && d <= DailyCycleLength {
			daily = append(daily, d)
		}
	}
	out.ClaimedDailyRewards = daily
	return out
}

// Equal compares two snapshots by value, treating nil and empty collections
// alike. Quiz logs compare as multisets.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.SchemaVersion == other.SchemaVersion &&
		s.XP == other.XP &&
		s.CurrentStreak == other.CurrentStreak &&
		s.LongestStreak == other.LongestStreak &&
		s.LastActivity == other.LastActivity &&
		s.CurrentStage == other.CurrentStage &&
		slices.Equal(s.CompletedLessons, other.CompletedLessons) &&
		slices.Equal(s.CompletedScenarios, other.CompletedScenarios) &&
		sameQuizLog(s.QuizScores, other.QuizScores) &&
		slices.Equal(s.SubmittedProblems, other.SubmittedProblems) &&
		slices.Equal(s.ClaimedDailyRewards, other.ClaimedDailyRewards) &&
		slices.Equal(s.ClaimedWeeklyRewards, other.ClaimedWeeklyRewards) &&
		s.TotalLogins == other.TotalLogins &&
		s.LastLogin == other.LastLogin &&
		s.WeeklyProgress == other.WeeklyProgress &&
		s.DailyCycleStart == other.DailyCycleStart
}

func sameQuizLog(a, b []QuizScore) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.SortFunc(x, QuizScore.Compare)
	slices.SortFunc(y, QuizScore.Compare)
	return slices.Equal(x, y)
}
