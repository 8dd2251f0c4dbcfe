package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fixora/internal/config"
	"fixora/internal/events"
	"fixora/internal/export"
	"fixora/internal/models"
	"fixora/internal/service"
	"fixora/internal/store"
	"fixora/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

type testEnv struct {
	ts       *httptest.Server
	shared   *store.Shared
	bookings *service.BookingService
	matcher  *service.MatchingService
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	retry := worker.RetryPolicy{MaxRetries: 10, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	shared := store.NewShared(store.NewMemoryBackend(), retry, &logger)
	bus := events.NewLocalBus("api-test", &logger)

	bookings := service.NewBookingService(shared, bus, &logger)
	matcher := service.NewMatchingService(shared, models.NewCoordinate(models.DefaultLatitude, models.DefaultLongitude), &logger)
	_, err := matcher.SeedDemo(context.Background())
	require.NoError(t, err)

	srv := NewServer(cfg, bookings, matcher, export.New(t.TempDir(), &logger), shared, &logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, shared: shared, bookings: bookings, matcher: matcher}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func bookingBody() models.CreateBookingRequest {
	return models.CreateBookingRequest{
		CustomerID:     "cust-1",
		CustomerName:   "Anita",
		ProfessionalID: "plumber_demo",
		BookingDetails: models.BookingDetails{Service: "Leak", Address: "12 MG Road", PreferredDate: "2024-05-01"},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	logger := zerolog.Nop()
	srv := NewServer(config.APIConfig{}, nil, nil, nil, stubHealth{err: errors.New("down")}, &logger)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProfessionalsEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	t.Run("ListByProfession", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/professionals?profession=plumber&lat=12.9716&lng=77.5946", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decode[[]models.RankedProfessional](t, resp)
		require.Len(t, list, 1)
		assert.Equal(t, "plumber_demo", list[0].ID)
		assert.InDelta(t, 0, list[0].DistanceKm, 1e-9)
	})

	t.Run("ListAll", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/professionals", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode[[]models.RankedProfessional](t, resp), 3)
	})

	t.Run("InvalidLatitude", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/professionals?lat=north", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("OriginOutOfRange", func(t *testing.T) {
		for _, query := range []string{"lat=NaN&lng=77", "lat=Inf&lng=77", "lat=12&lng=-Inf", "lat=1000&lng=77", "lat=12&lng=181"} {
			resp := env.do(t, http.MethodGet, "/api/professionals?"+query, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
			assert.Equal(t, "validation_error", decode[errorResponse](t, resp).Error.Code, query)
		}
	})

	t.Run("OriginOnBoundary", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/professionals?lat=-90&lng=180", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode[[]models.RankedProfessional](t, resp), 3)
	})

	t.Run("Get", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/professionals/carpenter_demo", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Rajesh Kumar", decode[models.Professional](t, resp).Name)
	})

	t.Run("GetMissing", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/professionals/nobody", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		body := decode[errorResponse](t, resp)
		assert.Equal(t, "not_found", body.Error.Code)
	})

	t.Run("Put", func(t *testing.T) {
		p := service.DemoProfessionals()[0]
		p.Availability = models.AvailabilityUnavailable
		resp := env.do(t, http.MethodPut, "/api/professionals/carpenter_demo", p)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodGet, "/api/professionals?profession=Carpenter", nil)
		assert.Empty(t, decode[[]models.RankedProfessional](t, resp))
	})

	t.Run("PutInvalid", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/professionals/x", models.Professional{Name: "X", Profession: "Painter"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorResponse](t, resp)
		assert.Equal(t, "validation_error", body.Error.Code)
		require.Len(t, body.Error.Fields, 1)
		assert.Equal(t, "profession", body.Error.Fields[0].Field)
	})
}

func TestBookingsEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodPost, "/api/bookings", bookingBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Booking](t, resp)
	assert.Equal(t, models.StatusPending, created.Status)

	t.Run("CreateInvalid", func(t *testing.T) {
		body := bookingBody()
		body.Address = ""
		resp := env.do(t, http.MethodPost, "/api/bookings", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "address", decode[errorResponse](t, resp).Error.Fields[0].Field)
		assert.Len(t, env.shared.Bookings().ReadAll(context.Background()), 1)
	})

	t.Run("CreateMalformed", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/bookings", "{not json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ListForCustomer", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/bookings/customer/cust-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decode[[]models.Booking](t, resp)
		require.Len(t, list, 1)
		assert.Equal(t, created.ID, list[0].ID)
	})

	t.Run("ListForUnknownCustomerIsEmptyArray", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/bookings/customer/nobody", nil)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(raw))
	})

	t.Run("ListForProfessional", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/bookings/professional/plumber_demo", nil)
		assert.Len(t, decode[[]models.Booking](t, resp), 1)
	})

	t.Run("Get", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/bookings/"+created.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, created.ID, decode[models.Booking](t, resp).ID)
	})

	t.Run("WrongProfessional", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/bookings/"+created.ID,
			models.StatusChangeRequest{Status: models.StatusAccepted, ProfessionalID: "carpenter_demo"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Accept", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/bookings/"+created.ID,
			models.StatusChangeRequest{Status: models.StatusAccepted, ProfessionalID: "plumber_demo"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.StatusAccepted, decode[models.Booking](t, resp).Status)
	})

	t.Run("IllegalTransition", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/bookings/"+created.ID,
			models.StatusChangeRequest{Status: models.StatusDeclined})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decode[errorResponse](t, resp)
		assert.Equal(t, "invalid_transition", body.Error.Code)
		assert.Equal(t, models.StatusAccepted, body.Error.Details["from"])
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/bookings/booking_missing",
			models.StatusChangeRequest{Status: models.StatusAccepted})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Export", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/bookings/customer/cust-1/export", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

		f, err := excelize.OpenReader(resp.Body)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Bookings")
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("UnknownRoute", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/unknown", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStatusFor(t *testing.T) {
	code, detail := statusFor(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", detail.Message)

	code, _ = statusFor(store.ErrConflict)
	assert.Equal(t, http.StatusConflict, code)
}

func TestWriteJSON_UnencodablePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"distanceKm": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"internal"`)
}
