package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/progress-sync/internal/progress"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.True(t, c.HasLesson(1))
	assert.True(t, c.HasLesson(40))
	assert.False(t, c.HasLesson(0))
	assert.False(t, c.HasScenario(13))
	assert.Equal(t, 40, c.LessonCount())
	assert.Equal(t, 12, c.ScenarioCount())

	r, ok := c.DailyReward(7)
	require.True(t, ok)
	assert.True(t, r.GrantsXP())

	r, ok = c.DailyReward(3)
	require.True(t, ok)
	assert.False(t, r.GrantsXP())

	_, ok = c.WeeklyReward(5)
	assert.False(t, ok)
}

func TestStageForRequiresEveryLowerThreshold(t *testing.T) {
	c := Default()

	first := progress.NewIntSet(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	assert.Equal(t, 2, c.StageFor(first))

	onlySecondRange := progress.NewIntSet(11, 12, 13, 14, 15, 16, 17, 18, 19, 20)
	assert.Equal(t, 1, c.StageFor(onlySecondRange))

	assert.Equal(t, 3, c.StageFor(first.Union(onlySecondRange)))
	assert.Equal(t, 1, c.StageFor(progress.IntSet{}))
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"bad kind": `
content: {lessons: {from: 1, to: 5}, scenarios: {from: 1, to: 2}}
dailyRewards: [{index: 1, kind: gems, title: x}]`,
		"daily index out of cycle": `
content: {lessons: {from: 1, to: 5}, scenarios: {from: 1, to: 2}}
dailyRewards: [{index: 8, kind: xp, amount: 1, title: x}]`,
		"duplicate weekly": `
content: {lessons: {from: 1, to: 5}, scenarios: {from: 1, to: 2}}
weeklyRewards: [{index: 1, kind: badge, title: a}, {index: 1, kind: badge, title: b}]`,
		"inverted range": `
content: {lessons: {from: 5, to: 1}, scenarios: {from: 1, to: 2}}`,
		"stages out of order": `
content: {lessons: {from: 1, to: 5}, scenarios: {from: 1, to: 2}}
stages: [{stage: 3, from: 1, to: 2, minCompleted: 1}, {stage: 2, from: 3, to: 4, minCompleted: 1}]`,
		"not yaml": "content: [",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
content: {lessons: {from: 100, to: 109}, scenarios: {from: 1, to: 1}}
stages: [{stage: 2, from: 100, to: 104, minCompleted: 5}]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.HasLesson(105))
	assert.Equal(t, 2, c.StageFor(progress.NewIntSet(100, 101, 102, 103, 104)))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
