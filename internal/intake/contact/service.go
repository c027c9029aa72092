package contact

import (
	"context"
	"fmt"
	"strings"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

// Geocoder resolves coordinates to a display address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Service validates contact details and resolves capture locations.
type Service struct {
	logger   logger.Logger
	geocoder Geocoder
}

// NewService creates a contact service. The geocoder may be nil, in which
// case locations stay as raw coordinates.
func NewService(log logger.Logger, geocoder Geocoder) *Service {
	return &Service{
		logger:   log,
		geocoder: geocoder,
	}
}

// Normalize trims the fields of the submitted contact details in place.
func (s *Service) Normalize(info *models.UserInfo) {
	info.Name = strings.TrimSpace(info.Name)
	info.ClaimID = strings.TrimSpace(info.ClaimID)
	info.Phone = strings.TrimSpace(info.Phone)
	info.Location = strings.TrimSpace(info.Location)
}

// Validate checks the normalized contact details and returns per-field
// errors. An empty map means the details are acceptable.
func (s *Service) Validate(info models.UserInfo) map[string]string {
	return ValidateUserInfo(info)
}

// ResolveLocation turns coordinates into a display address. Lookup failures
// degrade to the raw "lat,lon" string so a flaky geocoder never blocks the
// intake.
func (s *Service) ResolveLocation(ctx context.Context, lat, lon float64) string {
	fallback := fmt.Sprintf("%f,%f", lat, lon)

	if s.geocoder == nil {
		return fallback
	}

	address, err := s.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"lat": lat,
			"lon": lon,
		}).Warn("Reverse geocoding failed, falling back to coordinates", nil)
		return fallback
	}

	return address
}
