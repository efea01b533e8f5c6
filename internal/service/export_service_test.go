package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	"github.com/meridianpsych/practice-api/pkg/export"
)

type pdfRecorder struct {
	data     export.Dataset
	title    string
	subtitle string
}

func (r *pdfRecorder) Render(data export.Dataset, title, subtitle string) ([]byte, error) {
	r.data = data
	r.title = title
	r.subtitle = subtitle
	return []byte("%PDF-stub"), nil
}

func TestDaySheetRowsFollowSlotState(t *testing.T) {
	day := &models.DayAvailability{
		Date: testTuesday,
		Slots: []models.EffectiveSlot{
			{Time: "10:00", SessionType: "individual", Origin: models.SlotOriginRecurring, IsBooked: true,
				Appointment: &models.Appointment{ClientName: "J. Doe", ClientEmail: "j.doe@example.com"}},
			{Time: "16:00", SessionType: "individual", Origin: models.SlotOriginSpecial},
		},
	}
	pdf := &pdfRecorder{}
	svc := NewExportService(&resolverStub{day: day}, newSubscriberRepoMock(), nil, pdf, zap.NewNop())

	file, err := svc.DaySheet(context.Background(), testTuesday)
	require.NoError(t, err)
	assert.Equal(t, "day-sheet-"+testTuesday+".pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, "Day Sheet", pdf.title)
	assert.Equal(t, testTuesday, pdf.subtitle)

	require.Len(t, pdf.data.Rows, 2)
	assert.Equal(t, "Booked", pdf.data.Rows[0]["Status"])
	assert.Equal(t, "J. Doe", pdf.data.Rows[0]["Client"])
	assert.Equal(t, "individual (added)", pdf.data.Rows[1]["Session"])
	assert.Equal(t, "Open", pdf.data.Rows[1]["Status"])
}

func TestSubscribersExportActiveOnly(t *testing.T) {
	repo := newSubscriberRepoMock()
	now := time.Now().UTC()
	repo.byEmail["a@example.com"] = &models.Subscriber{ID: "s1", Email: "a@example.com", Name: "A", Active: true, SubscribedAt: now}
	repo.byEmail["b@example.com"] = &models.Subscriber{ID: "s2", Email: "b@example.com", Name: "B", Active: false, SubscribedAt: now}
	svc := NewExportService(&resolverStub{}, repo, nil, &pdfRecorder{}, zap.NewNop())

	file, err := svc.Subscribers(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)

	body := string(file.Payload)
	assert.True(t, strings.HasPrefix(body, "Email,Name,Active,Subscribed At"))
	assert.Contains(t, body, "a@example.com")
	assert.NotContains(t, body, "b@example.com")
}
