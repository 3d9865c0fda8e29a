// Package catalog holds the read-only content ranges, stage thresholds and
// reward definitions the engine consults. Nothing in the engine mutates a
// Catalog after it is loaded.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/progress-sync/internal/progress"
)

//go:embed default.yaml
var defaultYAML []byte

var validate = validator.New()

// RewardKind classifies what a reward grants.
type RewardKind string

const (
	RewardXP    RewardKind = "xp"
	RewardBadge RewardKind = "badge"
	RewardTitle RewardKind = "title"
)

// Range is an inclusive id range.
type Range struct {
	From int `yaml:"from" validate:"min=1"`
	To   int `yaml:"to" validate:"gtefield=From"`
}

// Contains reports whether id lies in the range.
func (r Range) Contains(id int) bool { return id >= r.From && id <= r.To }

// Size is the number of ids in the range.
func (r Range) Size() int { return r.To - r.From + 1 }

// Stage unlocks once MinCompleted lessons with ids in [From, To] are complete.
type Stage struct {
	Stage        int `yaml:"stage" validate:"min=2"`
	From         int `yaml:"from" validate:"min=1"`
	To           int `yaml:"to" validate:"gtefield=From"`
	MinCompleted int `yaml:"minCompleted" validate:"min=1"`
}

// Reward is a daily (Index 1..7) or weekly (Index ≥ 1) reward definition.
type Reward struct {
	Index  int        `yaml:"index" json:"index" validate:"min=1"`
	Kind   RewardKind `yaml:"kind" json:"kind" validate:"required,oneof=xp badge title"`
	Amount int        `yaml:"amount" json:"amount,omitempty" validate:"min=0"`
	Title  string     `yaml:"title" json:"title" validate:"required"`
}

// GrantsXP reports whether claiming the reward credits XP.
func (r Reward) GrantsXP() bool { return r.Kind == RewardXP && r.Amount > 0 }

// Catalog is the parsed, validated catalog document.
type Catalog struct {
	Content struct {
		Lessons   Range `yaml:"lessons"`
		Scenarios Range `yaml:"scenarios"`
	} `yaml:"content"`
	Stages        []Stage  `yaml:"stages" validate:"dive"`
	DailyRewards  []Reward `yaml:"dailyRewards" validate:"max=7,dive"`
	WeeklyRewards []Reward `yaml:"weeklyRewards" validate:"dive"`

	daily  map[int]Reward
	weekly map[int]Reward
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file, falling back to the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	c.daily = make(map[int]Reward, len(c.DailyRewards))
	for _, r := range c.DailyRewards {
		if r.Index > progress.DailyCycleLength {
			return nil, fmt.Errorf("daily reward index %d outside 1..%d", r.Index, progress.DailyCycleLength)
		}
		if _, dup := c.daily[r.Index]; dup {
			return nil, fmt.Errorf("duplicate daily reward index %d", r.Index)
		}
		c.daily[r.Index] = r
	}

	c.weekly = make(map[int]Reward, len(c.WeeklyRewards))
	for _, r := range c.WeeklyRewards {
		if _, dup := c.weekly[r.Index]; dup {
			return nil, fmt.Errorf("duplicate weekly reward index %d", r.Index)
		}
		c.weekly[r.Index] = r
	}

	for i := 1; i < len(c.Stages); i++ {
		if c.Stages[i].Stage <= c.Stages[i-1].Stage {
			return nil, errors.New("stages must be listed in ascending order")
		}
	}
	return &c, nil
}

// HasLesson reports whether id is a known lesson.
func (c *Catalog) HasLesson(id int) bool { return c.Content.Lessons.Contains(id) }

// HasScenario reports whether id is a known scenario.
func (c *Catalog) HasScenario(id int) bool { return c.Content.Scenarios.Contains(id) }

// LessonCount is the number of lessons in the catalog.
func (c *Catalog) LessonCount() int { return c.Content.Lessons.Size() }

// ScenarioCount is the number of scenarios in the catalog.
func (c *Catalog) ScenarioCount() int { return c.Content.Scenarios.Size() }

// StageFor returns the highest stage whose threshold, and every lower
// threshold, is met by the completed lesson set.
func (c *Catalog) StageFor(completed progress.IntSet) int {
	stage := 1
	for _, s := range c.Stages {
		if completed.CountBetween(s.From, s.To) < s.MinCompleted {
			break
		}
		stage = s.Stage
	}
	return stage
}

// DailyReward looks up the reward for a day of the daily cycle.
func (c *Catalog) DailyReward(day int) (Reward, bool) {
	r, ok := c.daily[day]
	return r, ok
}

// WeeklyReward looks up the reward for a completed week.
func (c *Catalog) WeeklyReward(week int) (Reward, bool) {
	r, ok := c.weekly[week]
	return r, ok
}
