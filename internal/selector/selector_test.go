package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"seminarcal/internal/identity"
	"seminarcal/internal/model"
)

func seminar(title string, start time.Time) model.Seminar {
	return model.Seminar{
		Title: title,
		Start: start,
		End:   start.Add(time.Hour),
		RawKey: model.RawKey{
			Title:    title,
			DateText: start.Format("January 2, 2006"),
			TimeText: start.Format("3:04 pm"),
			Location: "Room 1",
		},
	}
}

func TestSelectFiltersSentAndPast(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	past := seminar("Already Happened", now.Add(-48*time.Hour))
	notified := seminar("Already Notified", now.Add(24*time.Hour))
	fresh := seminar("Brand New", now.Add(48*time.Hour))

	sent := model.NewSentState().With([]string{identity.KeyFor(notified.RawKey)}, now)

	got := Select([]model.Seminar{past, notified, fresh}, sent, now, 0)
	assert.Equal(t, []model.Seminar{fresh}, got)
}

func TestSelectGraceWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	justStarted := seminar("Just Started", now.Add(-10*time.Minute))

	assert.Empty(t, Select([]model.Seminar{justStarted}, model.NewSentState(), now, 0))
	assert.Len(t, Select([]model.Seminar{justStarted}, model.NewSentState(), now, 15*time.Minute), 1)
}

func TestSelectPreservesOrder(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	// Listing order is not chronological; output must match input order.
	a := seminar("Later Talk", now.Add(72*time.Hour))
	b := seminar("Sooner Talk", now.Add(24*time.Hour))
	c := seminar("Middle Talk", now.Add(48*time.Hour))

	got := Select([]model.Seminar{a, b, c}, model.NewSentState(), now, 0)
	assert.Equal(t, []string{"Later Talk", "Sooner Talk", "Middle Talk"},
		[]string{got[0].Title, got[1].Title, got[2].Title})
}

func TestSelectEmptyIsNormal(t *testing.T) {
	now := time.Now()
	assert.Empty(t, Select(nil, model.NewSentState(), now, 0))
}

func TestKeysMatchSelection(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seminar("A", now.Add(24*time.Hour))
	b := seminar("B", now.Add(48*time.Hour))

	keys := Keys([]model.Seminar{a, b})
	assert.Equal(t, []string{identity.KeyFor(a.RawKey), identity.KeyFor(b.RawKey)}, keys)
}
