package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/tree"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleSummary() *Summary {
	s := NewSummary("group", []domain.ItemResult{
		{Kind: "group", Item: "Root", Outcome: domain.OutcomeExisting, SourceID: 1, TargetID: 10},
		{Kind: "group", Item: "Root/Linux", Outcome: domain.OutcomeCreated, SourceID: 2, TargetID: 11},
		{Kind: "group", Item: "Root/Linux/Prod", Outcome: domain.OutcomeFailed, Reason: "Rejected", SourceID: 3,
			Warnings: []string{"name is too long"}},
		{Kind: "group", Item: "Root/Linux/Prod/Web", Outcome: domain.OutcomeSkipped, Reason: "ParentFailed", SourceID: 4},
		{Kind: "group", Item: "Root/Windows", Outcome: domain.OutcomeFailed, Reason: "Rejected", SourceID: 5,
			Warnings: []string{"rejected by endpoint: bad parent"}},
	})
	s.RunID = "5f0c9a3e-8d2b-4b7e-9a41-0c6f2d7e1b55"
	return s
}

func TestSummaryTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{Format: FormatTable}).Summary(sampleSummary()))
	newGoldie(t).Assert(t, "summary_table", buf.Bytes())
}

func TestSummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{Format: FormatJSON}).Summary(sampleSummary()))

	var got struct {
		RunID  string         `json:"run_id"`
		Counts map[string]int `json:"counts"`
		Items  []domain.ItemResult
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "5f0c9a3e-8d2b-4b7e-9a41-0c6f2d7e1b55", got.RunID)
	assert.Equal(t, 2, got.Counts["failed"])
	assert.Len(t, got.Items, 5)
}

func TestSummaryDryRun(t *testing.T) {
	s := NewSummary("folder", []domain.ItemResult{
		{Kind: "folder", Item: "By Policy", Outcome: domain.OutcomePlanned, TargetID: -1},
	})
	s.DryRun = true

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{}).Summary(s))
	assert.Contains(t, buf.String(), "folder: 1 planned, 0 existing, 0 skipped, 0 failed\n")
	assert.NotContains(t, buf.String(), "warnings:")
}

func TestReasons(t *testing.T) {
	reasons := sampleSummary().Reasons()
	require.Len(t, reasons, 2)
	assert.Equal(t, ReasonCount{Outcome: domain.OutcomeFailed, Reason: "Rejected", Count: 2}, reasons[0])
	assert.Equal(t, ReasonCount{Outcome: domain.OutcomeSkipped, Reason: "ParentFailed", Count: 1}, reasons[1])
}

func sampleTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr, err := tree.Build(domain.ContainerKindGroup, []domain.ContainerRecord{
		{ID: 1, Name: "Root", Kind: domain.ContainerKindGroup},
		{ID: 2, Name: "Linux", ParentID: domain.Int64Ptr(1), Kind: domain.ContainerKindGroup},
		{ID: 3, Name: "Prod", ParentID: domain.Int64Ptr(2), Kind: domain.ContainerKindGroup},
		{ID: 4, Name: "Windows", ParentID: domain.Int64Ptr(1), Kind: domain.ContainerKindGroup},
		{ID: 5, Name: "Lab", Kind: domain.ContainerKindGroup},
	})
	require.NoError(t, err)
	return tr
}

func TestTreeTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{}).Tree(sampleTree(t)))
	newGoldie(t).Assert(t, "tree", buf.Bytes())
}

func TestTreePorcelain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{Porcelain: true}).Tree(sampleTree(t)))
	assert.Equal(t, "5\tLab\n1\tRoot\n2\tRoot/Linux\n3\tRoot/Linux/Prod\n4\tRoot/Windows\n", buf.String())
}

func TestTreeYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{Format: FormatYAML}).Tree(sampleTree(t)))

	var got []treeEntry
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Root", got[1].Name)
	require.Len(t, got[1].Children, 2)
	assert.Equal(t, "Root/Linux/Prod", got[1].Children[0].Children[0].Path)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, Options{})
	require.NoError(t, r.RenderTable([]string{"ID", "NAME"}, [][]string{{"1", "legacy"}, {"12", "cloud"}}))
	assert.Equal(t, "ID  NAME\n--  ------\n1   legacy\n12  cloud\n", buf.String())

	buf.Reset()
	require.NoError(t, r.RenderTable([]string{"ID"}, nil))
	assert.Empty(t, buf.String())
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"table", "json", "yaml"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, Format(name), f)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPlanDiff(t *testing.T) {
	before := []domain.Path{{"Root"}, {"Root", "Linux"}}
	after := []domain.Path{{"Root"}, {"Root", "Linux"}, {"Root", "Linux", "Prod"}}

	diff, err := PlanDiff("cloud", before, after)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(diff, "--- cloud (current)\n+++ cloud (planned)\n"), diff)
	assert.Contains(t, diff, "\n+Root/Linux/Prod\n")
	assert.Contains(t, diff, "\n Root/Linux\n")

	same, err := PlanDiff("cloud", before, before)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestSummariesPrintRunOnce(t *testing.T) {
	groups := NewSummary("group", []domain.ItemResult{{Kind: "group", Item: "Root", Outcome: domain.OutcomeExisting, TargetID: 10}})
	tasks := NewSummary("scheduled", []domain.ItemResult{{Kind: "scheduled", Item: "Nightly", Outcome: domain.OutcomeCreated, TargetID: 40}})
	groups.RunID, tasks.RunID = "r-1", "r-1"

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, Options{}).Summaries([]*Summary{groups, tasks}))
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "run r-1"))
	assert.Contains(t, out, "group: 0 created, 1 existing, 0 skipped, 0 failed\n")
	assert.Contains(t, out, "scheduled: 1 created, 0 existing, 0 skipped, 0 failed\n")
	assert.Equal(t, "r-1", groups.RunID)

	buf.Reset()
	require.NoError(t, NewRenderer(&buf, Options{Format: FormatJSON}).Summaries([]*Summary{groups, tasks}))
	var decoded []Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "scheduled", decoded[1].Kind)
}
