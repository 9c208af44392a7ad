package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/store/memory"
)

func seedAlerts(t *testing.T, store *memory.AlertStore, n int) {
	t.Helper()
	base := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, store.Append(context.Background(), domain.LunarAlert{
			ID:        "al-" + string(rune('a'+i)),
			Type:      domain.AlertRing,
			Severity:  domain.SeverityWarning,
			Title:     "coordinated activity",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestListAlertsNewestFirst(t *testing.T) {
	store := memory.NewAlertStore()
	seedAlerts(t, store, 3)
	h := NewAlertHandler(store, discardLogger())

	rec := httptest.NewRecorder()
	h.ListAlerts(rec, httptest.NewRequest(http.MethodGet, "/api/alerts?limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body listAlertsResponse
	decodeJSON(t, rec, &body)
	require.Len(t, body.Alerts, 2)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, "al-c", body.Alerts[0].ID)
	assert.Equal(t, "al-b", body.Alerts[1].ID)
}

func TestListAlertsStoreError(t *testing.T) {
	h := NewAlertHandler(&erroringAlertStore{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ListAlerts(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	store := memory.NewAlertStore()
	seedAlerts(t, store, 1)
	h := NewAlertHandler(store, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/al-a/ack", nil)
	req.SetPathValue("id", "al-a")
	rec := httptest.NewRecorder()
	h.AcknowledgeAlert(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.GetByID(context.Background(), "al-a")
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
}

func TestAcknowledgeAlertNotFound(t *testing.T) {
	h := NewAlertHandler(memory.NewAlertStore(), discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/ghost/ack", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()
	h.AcknowledgeAlert(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeAlertMissingID(t *testing.T) {
	h := NewAlertHandler(memory.NewAlertStore(), discardLogger())

	rec := httptest.NewRecorder()
	h.AcknowledgeAlert(rec, httptest.NewRequest(http.MethodPost, "/api/alerts//ack", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type erroringAlertStore struct{}

func (s *erroringAlertStore) Append(context.Context, domain.LunarAlert) error {
	return errors.New("store down")
}

func (s *erroringAlertStore) ListRecent(context.Context, int) ([]domain.LunarAlert, error) {
	return nil, errors.New("store down")
}

func (s *erroringAlertStore) GetByID(context.Context, string) (domain.LunarAlert, error) {
	return domain.LunarAlert{}, errors.New("store down")
}

func (s *erroringAlertStore) Acknowledge(context.Context, string) error {
	return errors.New("store down")
}
