package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflectionSchedulerRunOnce(t *testing.T) {
	f := newReflectionFixture(t)
	ev := NewTriggerEvaluator(f.memories, testLogger())
	sched := NewReflectionScheduler(f.agents, ev, f.svc, testLogger())
	sched.SetConcurrency(2)
	ctx := context.Background()

	// f.agent is due on time
	require.NoError(t, f.agents.TouchLastActive(ctx, f.agent.ID, testNow.Add(-2*time.Hour)))

	seedAgent(t, f.agents, "quiet")

	sleeping := seedAgent(t, f.agents, "sleeping")
	require.NoError(t, f.agents.UpdateStatus(ctx, sleeping.ID, domain.AgentStatusDormant))
	require.NoError(t, f.agents.TouchLastActive(ctx, sleeping.ID, testNow.Add(-48*time.Hour)))

	busy := seedAgent(t, f.agents, "busy")
	require.NoError(t, f.agents.TouchLastActive(ctx, busy.ID, testNow.Add(-48*time.Hour)))
	release, ok := f.svc.Locks().TryAcquire(busy.ID)
	require.True(t, ok)
	defer release()

	// due, but has no identity documents
	broken := seedAgent(t, f.agents, "broken")
	require.NoError(t, f.agents.TouchLastActive(ctx, broken.ID, testNow.Add(-48*time.Hour)))

	result := sched.RunOnce(ctx)
	assert.Equal(t, &SchedulerResult{Evaluated: 3, Reflected: 1, Busy: 1, Failed: 1}, result)
	assert.Equal(t, 1, f.reflections.count())

	statusOf := func(id uuid.UUID) *domain.Agent {
		got, err := f.agents.GetByID(ctx, id)
		require.NoError(t, err)
		return got
	}
	reflected := statusOf(f.agent.ID)
	assert.Equal(t, domain.AgentStatusActive, reflected.Status)
	assert.Equal(t, testNow.UTC(), reflected.LastActive)
	assert.Equal(t, domain.AgentStatusActive, statusOf(broken.ID).Status)
	assert.Equal(t, domain.AgentStatusDormant, statusOf(sleeping.ID).Status)

	// touched agents are not due again
	release()
	require.NoError(t, f.agents.UpdateStatus(ctx, busy.ID, domain.AgentStatusArchived))
	require.NoError(t, f.agents.UpdateStatus(ctx, broken.ID, domain.AgentStatusArchived))
	result = sched.RunOnce(ctx)
	assert.Equal(t, &SchedulerResult{Evaluated: 2}, result)
	assert.Equal(t, 1, f.reflections.count())
}

func TestReflectionSchedulerStartStop(t *testing.T) {
	f := newReflectionFixture(t)
	sched := NewReflectionScheduler(f.agents, NewTriggerEvaluator(f.memories, testLogger()), f.svc, testLogger())
	sched.SetInterval(time.Hour)
	sched.Start()
	sched.Stop()
}

// hookGenerator runs onGenerate before delegating.
type hookGenerator struct {
	domain.TextGenerator
	onGenerate func()
}

func (g hookGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	g.onGenerate()
	return g.TextGenerator.Generate(ctx, req)
}

func TestReflectionSchedulerKeepsStatusSetDuringRun(t *testing.T) {
	f := newReflectionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.agents.TouchLastActive(ctx, f.agent.ID, testNow.Add(-2*time.Hour)))

	var seen domain.AgentStatus
	gen := hookGenerator{TextGenerator: f.generator, onGenerate: func() {
		if a, err := f.agents.GetByID(ctx, f.agent.ID); assert.NoError(t, err) {
			seen = a.Status
		}
		// the agent is put to sleep while its reflection is running
		assert.NoError(t, f.agents.UpdateStatus(ctx, f.agent.ID, domain.AgentStatusDormant))
	}}
	svc := NewReflectionService(f.agents, f.memories, f.reflections, f.docs, f.embedder, gen, nil, testLogger())
	sched := NewReflectionScheduler(f.agents, NewTriggerEvaluator(f.memories, testLogger()), svc, testLogger())

	result := sched.RunOnce(ctx)
	assert.Equal(t, 1, result.Reflected)
	assert.Equal(t, domain.AgentStatusReflecting, seen)

	got, err := f.agents.GetByID(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusDormant, got.Status)
}

func TestReflectionSchedulerRestoresStatusAfterFailure(t *testing.T) {
	f := newReflectionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.agents.TouchLastActive(ctx, f.agent.ID, testNow.Add(-2*time.Hour)))
	f.generator.Err = errors.New("model overloaded")

	sched := NewReflectionScheduler(f.agents, NewTriggerEvaluator(f.memories, testLogger()), f.svc, testLogger())
	result := sched.RunOnce(ctx)
	assert.Equal(t, 1, result.Failed)

	got, err := f.agents.GetByID(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusActive, got.Status)
}
