package mail

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/entity"
)

func sampleEvent() entity.StageChangedEvent {
	return entity.StageChangedEvent{
		EventID:     "evt-1",
		LeadID:      42,
		Company:     "Acme",
		ContactName: "Ana",
		Email:       "ana@acme.com",
		From:        entity.StageNew,
		To:          entity.StageContacted,
		ChangedAt:   time.Date(2024, 12, 1, 10, 30, 0, 0, time.Local),
	}
}

func TestRenderContacted(t *testing.T) {
	body, err := renderContacted(sampleEvent())
	require.NoError(t, err)

	assert.Contains(t, body, "Lead #42 (Acme) moved to Contacted from New at 2024-12-01 10:30.")
	assert.Contains(t, body, "Contact: Ana")
	assert.Contains(t, body, "Email: ana@acme.com")
}

func TestRenderContactedOmitsEmptyFields(t *testing.T) {
	ev := sampleEvent()
	ev.From = ""
	ev.ContactName = ""
	ev.Email = ""

	body, err := renderContacted(ev)
	require.NoError(t, err)

	assert.Contains(t, body, "moved to Contacted at")
	assert.NotContains(t, body, "Contact:")
	assert.NotContains(t, body, "Email:")
}

func TestBuildContactedMessageHeaders(t *testing.T) {
	s := NewEmailSender("smtp.test", 587, "user", "pass", "crm@test.dev", "owner@test.dev")

	m, err := s.buildContactedMessage(sampleEvent())
	require.NoError(t, err)

	assert.Equal(t, []string{"crm@test.dev"}, m.GetHeader("From"))
	assert.Equal(t, []string{"owner@test.dev"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Lead contacted: Acme"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Acme")
}

func TestNotifyContactedHonoursCancelledContext(t *testing.T) {
	s := NewEmailSender("smtp.invalid", 587, "", "", "a@test.dev", "b@test.dev")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.NotifyContacted(ctx, sampleEvent())
	assert.ErrorIs(t, err, context.Canceled)
}
