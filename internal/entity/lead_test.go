package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStages(t *testing.T) {
	got := Stages()
	assert.Equal(t, []Stage{StageNew, StageContacted, StagePresentationDone, StagePaused, StageLost}, got)

	got[0] = "Changed"
	assert.Equal(t, StageNew, Stages()[0], "callers get a copy")
}

func TestStageValid(t *testing.T) {
	for _, s := range Stages() {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []Stage{"", "new", "Won", " New", "Presentation done"} {
		assert.False(t, s.Valid(), s)
	}
}

func TestLeadInputNormalized(t *testing.T) {
	in := LeadInput{Company: "  Acme ", Email: "\tana@acme.com\n", Stage: " New ", Notes: "  "}
	out := in.Normalized()

	assert.Equal(t, "Acme", out.Company)
	assert.Equal(t, "ana@acme.com", out.Email)
	assert.Equal(t, "New", out.Stage)
	assert.Equal(t, "", out.Notes)
	assert.Equal(t, "  Acme ", in.Company, "input is not modified")
}

func TestApplyStageStampsFirstContact(t *testing.T) {
	t0 := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	lead := &Lead{CreatedAt: t0}

	assert.True(t, lead.ApplyStage(StageNew, t0))
	assert.Nil(t, lead.LastContactedAt)

	t1 := t0.Add(time.Hour)
	assert.True(t, lead.ApplyStage(StageContacted, t1))
	require.NotNil(t, lead.LastContactedAt)
	assert.Equal(t, t1, *lead.LastContactedAt)

	t2 := t1.Add(time.Hour)
	assert.False(t, lead.ApplyStage(StageContacted, t2), "same stage is not a change")
	assert.Equal(t, t1, *lead.LastContactedAt, "staying in Contacted keeps the stamp")
	assert.Equal(t, t2, lead.UpdatedAt)

	t3 := t2.Add(time.Hour)
	lead.ApplyStage(StagePaused, t3)
	assert.Equal(t, t1, *lead.LastContactedAt, "leaving Contacted keeps the stamp")

	t4 := t3.Add(time.Hour)
	lead.ApplyStage(StageContacted, t4)
	assert.Equal(t, t4, *lead.LastContactedAt, "re-entering Contacted restamps")
}

func TestApplyStageNeverMovesUpdatedAtBackwards(t *testing.T) {
	t0 := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	lead := &Lead{UpdatedAt: t0, Stage: StageNew}

	lead.ApplyStage(StageContacted, t0.Add(-time.Minute))
	assert.Equal(t, t0, lead.UpdatedAt)
	require.NotNil(t, lead.LastContactedAt)
	assert.Equal(t, t0, *lead.LastContactedAt)
}

func TestApplyCopiesTextFields(t *testing.T) {
	lead := &Lead{ID: 3, Stage: StagePaused, Notes: "old"}
	lead.Apply(LeadInput{Company: "Acme", Interest: "ERP", Stage: "Lost"})

	assert.Equal(t, int64(3), lead.ID)
	assert.Equal(t, "Acme", lead.Company)
	assert.Equal(t, "ERP", lead.Interest)
	assert.Equal(t, "", lead.Notes)
	assert.Equal(t, StagePaused, lead.Stage, "stage is left to ApplyStage")
}

func TestUnrestricted(t *testing.T) {
	for _, v := range []string{"", "  ", "All", "Todos", " All "} {
		assert.True(t, Unrestricted(v), v)
	}
	for _, v := range []string{"all", "New", "ERP"} {
		assert.False(t, Unrestricted(v), v)
	}
}

func TestFirstContact(t *testing.T) {
	assert.True(t, StageChangedEvent{From: StageNew, To: StageContacted}.FirstContact())
	assert.True(t, StageChangedEvent{To: StageContacted}.FirstContact())
	assert.False(t, StageChangedEvent{From: StageContacted, To: StageContacted}.FirstContact())
	assert.False(t, StageChangedEvent{From: StageNew, To: StageLost}.FirstContact())
}
