package connector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/aiomigrate/internal/connector"
	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/merge"
	"github.com/lherron/aiomigrate/internal/refmap"
	"github.com/lherron/aiomigrate/internal/testutil"
)

func TestPlannerAbsorbsCreates(t *testing.T) {
	ctx := context.Background()
	dst := testutil.NewFakeEndpoint("dst")
	rootID := dst.AddPath(domain.ContainerKindGroup, "Root")
	planner := connector.NewPlanner(dst)

	linux, err := planner.CreateContainer(ctx, domain.ContainerSpec{
		Name: "Linux", Kind: domain.ContainerKindGroup, ParentID: domain.Int64Ptr(rootID),
	})
	require.NoError(t, err)
	task, err := planner.CreateTask(ctx, domain.TaskRecord{Name: "Nightly scan", Kind: domain.TaskKindScheduled})
	require.NoError(t, err)
	contact, err := planner.CreateContact(ctx, domain.Contact{Name: "Ops", Email: "ops@example.com", Role: "Auditor"})
	require.NoError(t, err)

	assert.Equal(t, int64(-1), linux)
	assert.Equal(t, int64(-2), task)
	assert.Equal(t, int64(-3), contact)
	assert.Empty(t, dst.Writes())

	writes := planner.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, connector.PlannedWrite{
		Op: "container", Kind: "group", Name: "Linux", ParentID: domain.Int64Ptr(rootID), ID: -1,
	}, writes[0])
	assert.Equal(t, "task", writes[1].Op)
	assert.Equal(t, "ops@example.com", writes[2].Name)

	// Reads still reach the wrapped endpoint
	records, err := planner.ListContainers(ctx, domain.ContainerKindGroup)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, dst.Info(), planner.Info())
}

func TestPlannerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := connector.NewPlanner(testutil.NewFakeEndpoint("dst"))

	_, err := planner.CreateContainer(ctx, domain.ContainerSpec{Name: "Root", Kind: domain.ContainerKindGroup})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, planner.Writes())
}

func TestDryRunMergePlansWithoutWriting(t *testing.T) {
	ctx := context.Background()
	src := testutil.NewFakeEndpoint("src")
	src.AddPath(domain.ContainerKindGroup, "Root", "Linux", "Prod")
	dst := testutil.NewFakeEndpoint("dst")
	dst.AddPath(domain.ContainerKindGroup, "Root")

	planner := connector.NewPlanner(dst)
	engine := merge.New(src, planner, refmap.New(), merge.Options{Logger: testutil.DiscardLogger()})
	res, err := engine.Merge(ctx, domain.ContainerKindGroup)
	require.NoError(t, err)
	connector.MarkPlanned(res.Items)

	assert.Empty(t, dst.Writes())
	assert.Len(t, planner.Writes(), 2)
	assert.Equal(t, 1, res.Count(domain.OutcomeExisting))
	assert.Equal(t, 2, res.Count(domain.OutcomePlanned))
	assert.Equal(t, 0, res.Count(domain.OutcomeCreated))

	// Planned children hang off planned parents
	node, err := res.Target.FindByPath(domain.Path{"Root", "Linux", "Prod"})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), node.ID())
	assert.Equal(t, int64(-1), *node.Record.ParentID)
}

func TestMarkPlanned(t *testing.T) {
	items := []domain.ItemResult{
		{Item: "a", Outcome: domain.OutcomeCreated, TargetID: -4},
		{Item: "b", Outcome: domain.OutcomeCreated, TargetID: 12},
		{Item: "c", Outcome: domain.OutcomeExisting, TargetID: 3},
		{Item: "d", Outcome: domain.OutcomeFailed},
	}
	connector.MarkPlanned(items)

	assert.Equal(t, domain.OutcomePlanned, items[0].Outcome)
	assert.Equal(t, domain.OutcomeCreated, items[1].Outcome)
	assert.Equal(t, domain.OutcomeExisting, items[2].Outcome)
	assert.Equal(t, domain.OutcomeFailed, items[3].Outcome)
}
