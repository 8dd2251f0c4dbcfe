package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fixora/internal/export"
	"fixora/internal/metrics"
	"fixora/internal/models"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// BookingExporter renders a list of bookings as a downloadable workbook.
type BookingExporter interface {
	WriteBookings(w io.Writer, title string, bookings []models.Booking) error
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("health")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ok", "time": time.Now().UTC()}
	if s.health != nil {
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Health check failed")
			resp["status"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseOrigin reads the optional lat/lng query. Values must be finite and
// within [-90,90] and [-180,180].
func parseOrigin(r *http.Request) (models.Coordinate, error) {
	var origin models.Coordinate
	for _, param := range []struct {
		name  string
		limit float64
		dst   **float64
	}{{"lat", 90, &origin.Lat}, {"lng", 180, &origin.Lng}} {
		raw := strings.TrimSpace(r.URL.Query().Get(param.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return origin, fmt.Errorf("invalid %s: %q", param.name, raw)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > param.limit {
			return origin, fmt.Errorf("%s out of range: %q", param.name, raw)
		}
		*param.dst = &v
	}
	return origin, nil
}

func (s *Server) handleListProfessionals(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("professionals_list")

	origin, err := parseOrigin(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	profession := r.URL.Query().Get("profession")
	writeJSON(w, http.StatusOK, s.matcher.FindProfessionals(r.Context(), profession, origin))
}

func (s *Server) handleGetProfessional(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("professionals_get")

	p, err := s.matcher.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfessional(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("professionals_put")

	var body models.Professional
	if !decodeJSON(w, r, &body) {
		return
	}
	body.ID = chi.URLParam(r, "id")

	saved, err := s.matcher.Upsert(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_create")

	var req models.CreateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	booking, err := s.bookings.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_get")

	booking, err := s.bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handlePutBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_put")

	var req models.StatusChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	booking, err := s.bookings.Respond(r.Context(), chi.URLParam(r, "id"), req.ProfessionalID, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_customer")
	writeJSON(w, http.StatusOK, s.bookings.ListForCustomer(r.Context(), chi.URLParam(r, "customerId")))
}

func (s *Server) handleProfessionalBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_professional")
	writeJSON(w, http.StatusOK, s.bookings.ListForProfessional(r.Context(), chi.URLParam(r, "professionalId")))
}

func (s *Server) handleCustomerExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_export")

	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "not_found", "export is not enabled")
		return
	}

	customerID := chi.URLParam(r, "customerId")
	bookings := s.bookings.ListForCustomer(r.Context(), customerID)

	var buf bytes.Buffer
	if err := s.exporter.WriteBookings(&buf, "Bookings of "+customerID, bookings); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(customerID, time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
