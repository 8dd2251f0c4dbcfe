package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"fixora/internal/domain"
	"fixora/internal/models"
)

const professionalCachePrefix = "fixora:client:professional:"

var _ domain.Matcher = (*Professionals)(nil)

// Professionals is the remote Matcher.
type Professionals struct {
	c *Client
}

func (p *Professionals) FindProfessionals(ctx context.Context, profession string, origin models.Coordinate) []models.RankedProfessional {
	q := url.Values{}
	if profession != "" {
		q.Set("profession", profession)
	}
	if origin.Lat != nil {
		q.Set("lat", strconv.FormatFloat(*origin.Lat, 'f', -1, 64))
	}
	if origin.Lng != nil {
		q.Set("lng", strconv.FormatFloat(*origin.Lng, 'f', -1, 64))
	}
	path := "/api/professionals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []models.RankedProfessional
	if err := p.c.get(ctx, path, &out); err != nil {
		p.c.logger.Warn().Err(err).Str("profession", profession).Msg("Listing professionals failed")
		return []models.RankedProfessional{}
	}
	if out == nil {
		out = []models.RankedProfessional{}
	}
	return out
}

func (p *Professionals) Get(ctx context.Context, id string) (*models.Professional, error) {
	var out models.Professional
	key := professionalCachePrefix + id
	if p.c.readCache(ctx, key, &out) {
		return &out, nil
	}
	if err := p.c.get(ctx, "/api/professionals/"+url.PathEscape(id), &out); err != nil {
		return nil, p.c.normalize("professionals.get", err)
	}
	p.c.writeCache(ctx, key, out)
	return &out, nil
}

func (p *Professionals) Upsert(ctx context.Context, professional models.Professional) (*models.Professional, error) {
	var out models.Professional
	err := p.c.do(ctx, http.MethodPut, "/api/professionals/"+url.PathEscape(professional.ID), professional, &out)
	p.c.dropCache(ctx, professionalCachePrefix+professional.ID)
	if err != nil {
		return nil, p.c.normalize("professionals.upsert", err)
	}
	return &out, nil
}
