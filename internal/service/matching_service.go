package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"fixora/internal/geo"
	"fixora/internal/models"
	"fixora/internal/store"

	"github.com/rs/zerolog"
)

type MatchingService struct {
	professionals *store.Collection[models.Professional]
	defaultOrigin models.Coordinate
	logger        *zerolog.Logger
}

// NewMatchingService builds the matcher. defaultOrigin fills in missing
// components of a search origin.
func NewMatchingService(shared *store.Shared, defaultOrigin models.Coordinate, logger *zerolog.Logger) *MatchingService {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if defaultOrigin.Lat == nil {
		defaultOrigin.Lat = geo.DefaultCoordinate.Lat
	}
	if defaultOrigin.Lng == nil {
		defaultOrigin.Lng = geo.DefaultCoordinate.Lng
	}
	serviceLogger := logger.With().Str("component", "matching_service").Logger()
	return &MatchingService{
		professionals: shared.Professionals(),
		defaultOrigin: defaultOrigin,
		logger:        &serviceLogger,
	}
}

// FindProfessionals returns available professionals, optionally of one
// profession (case-insensitive), nearest to origin first.
func (s *MatchingService) FindProfessionals(ctx context.Context, profession string, origin models.Coordinate) []models.RankedProfessional {
	wanted := ""
	if strings.TrimSpace(profession) != "" {
		canonical, ok := models.NormalizeProfession(profession)
		if !ok {
			s.logger.Debug().Str("profession", profession).Msg("Unknown profession requested")
			return []models.RankedProfessional{}
		}
		wanted = canonical
	}

	var candidates []models.Professional
	for _, p := range s.professionals.ReadAll(ctx) {
		if !p.IsAvailable() {
			continue
		}
		if wanted != "" {
			if got, _ := models.NormalizeProfession(p.Profession); got != wanted {
				continue
			}
		}
		candidates = append(candidates, p)
	}
	// map iteration order is random; fix the input order so ties are deterministic
	sortProfessionalsByID(candidates)

	ranked := geo.Rank(s.origin(origin), candidates, func(p models.Professional) models.Coordinate {
		return p.Location.Coordinate
	})

	out := make([]models.RankedProfessional, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, models.RankedProfessional{Professional: r.Item, DistanceKm: r.DistanceKm})
	}
	return out
}

func (s *MatchingService) origin(c models.Coordinate) models.Coordinate {
	if c.Lat == nil {
		c.Lat = s.defaultOrigin.Lat
	}
	if c.Lng == nil {
		c.Lng = s.defaultOrigin.Lng
	}
	return c
}

func (s *MatchingService) Get(ctx context.Context, id string) (*models.Professional, error) {
	p, err := s.professionals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert validates and stores a professional profile.
func (s *MatchingService) Upsert(ctx context.Context, professional models.Professional) (*models.Professional, error) {
	p, err := normalizeProfessional(professional)
	if err != nil {
		return nil, err
	}
	if err := s.professionals.Upsert(ctx, p.ID, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("professional_id", p.ID).Str("profession", p.Profession).Msg("Professional saved")
	return &p, nil
}

// Seed stores professionals that do not exist yet. Existing profiles are left untouched.
func (s *MatchingService) Seed(ctx context.Context, professionals []models.Professional) (int, error) {
	added := 0
	for _, professional := range professionals {
		p, err := normalizeProfessional(professional)
		if err != nil {
			return added, err
		}
		err = s.professionals.Insert(ctx, p.ID, p)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		s.logger.Info().Int("count", added).Msg("Professionals seeded")
	}
	return added, nil
}

// SeedDemo stores the built-in demo professionals.
func (s *MatchingService) SeedDemo(ctx context.Context) (int, error) {
	return s.Seed(ctx, DemoProfessionals())
}

func normalizeProfessional(p models.Professional) (models.Professional, error) {
	verr := &ValidationError{}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		verr.add("id", "is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		verr.add("name", "is required")
	}
	if canonical, ok := models.NormalizeProfession(p.Profession); ok {
		p.Profession = canonical
	} else {
		verr.add("profession", "must be Carpenter, Plumber or Electrician")
	}
	if p.Rating < 0 || p.Rating > models.MaxRating {
		verr.add("rating", "must be between 0 and 5")
	}
	if p.Pricing.HourlyRate < 0 || p.Pricing.MinimumRate < 0 {
		verr.add("pricing", "must not be negative")
	}
	switch p.Availability {
	case "":
		p.Availability = models.AvailabilityAvailable
	case models.AvailabilityAvailable, models.AvailabilityUnavailable:
	default:
		verr.add("availability", "must be available or unavailable")
	}
	return p, verr.orNil()
}

func sortProfessionalsByID(list []models.Professional) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
