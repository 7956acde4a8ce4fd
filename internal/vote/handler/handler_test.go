package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"demandstage/internal/vote/handler/mocks"
	"demandstage/internal/vote/models"
	dErrors "demandstage/pkg/domain-errors"
)

func newTestRouter(t *testing.T) (*chi.Mux, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	service := mocks.NewMockService(ctrl)
	h := New(service, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))

	r := chi.NewRouter()
	h.Register(r)
	return r, service
}

func TestHandleSubmit(t *testing.T) {
	t.Run("accepted vote returns the receipt", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().
			Submit(gomock.Any(), models.Submission{Artist: "Mitski", City: "Lisbon", DeviceID: "dev-1"}).
			Return(&models.Receipt{Success: true, Flagged: false}, nil)

		req := httptest.NewRequest(http.MethodPost, "/votes",
			strings.NewReader(`{"artist":"Mitski","city":"Lisbon","device_id":"dev-1"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

		var receipt models.Receipt
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
		assert.True(t, receipt.Success)
		assert.False(t, receipt.Flagged)
	})

	t.Run("flagged vote is still accepted", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(&models.Receipt{Success: true, Flagged: true}, nil)

		req := httptest.NewRequest(http.MethodPost, "/votes",
			strings.NewReader(`{"artist":"A","city":"X","device_id":"d"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var receipt models.Receipt
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
		assert.True(t, receipt.Flagged)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/votes", strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields return 400", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidInput, "missing required fields: city"))

		req := httptest.NewRequest(http.MethodPost, "/votes",
			strings.NewReader(`{"artist":"Mitski","device_id":"dev-1"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "city")
	})

	t.Run("duplicate returns 409 with the scoped message", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "a vote for this artist and city was already cast from your network"))

		req := httptest.NewRequest(http.MethodPost, "/votes",
			strings.NewReader(`{"artist":"A","city":"X","device_id":"d"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "network")
	})

	t.Run("rate-limit block returns 429", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeRateLimited, "too many recent votes"))

		req := httptest.NewRequest(http.MethodPost, "/votes",
			strings.NewReader(`{"artist":"A","city":"X","device_id":"d"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("storage failure returns 500 without internals", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(assertableErr("pq: connection refused"), dErrors.CodeInternal, "persist vote"))

		req := httptest.NewRequest(http.MethodPost, "/votes",
			strings.NewReader(`{"artist":"A","city":"X","device_id":"d"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("preflight is answered for any origin", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodOptions, "/votes", nil)
		req.Header.Set("Origin", "https://demandstage.example")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("only POST is routed", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodGet, "/votes", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleStatus(t *testing.T) {
	t.Run("reports an existing vote", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().HasVoted(gomock.Any(), "dev-1", "Mitski", "Lisbon").
			Return(&models.VoteStatus{HasVoted: true}, nil)

		req := httptest.NewRequest(http.MethodGet, "/votes/status?device_id=dev-1&artist=Mitski&city=Lisbon", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var status models.VoteStatus
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
		assert.True(t, status.HasVoted)
	})

	t.Run("missing query params return 400", func(t *testing.T) {
		r, service := newTestRouter(t)
		service.EXPECT().HasVoted(gomock.Any(), "", "", "").
			Return(nil, dErrors.New(dErrors.CodeInvalidInput, "device_id, artist and city are required"))

		req := httptest.NewRequest(http.MethodGet, "/votes/status", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// assertableErr is a bare error carrying driver detail that must never reach
// the response body.
type assertableErr string

func (e assertableErr) Error() string { return string(e) }
