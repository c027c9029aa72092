package contact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

type stubGeocoder struct {
	address string
	err     error
}

func (g *stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	return g.address, g.err
}

func TestValidateUserInfo(t *testing.T) {
	tests := []struct {
		name       string
		info       models.UserInfo
		wantFields []string
	}{
		{
			name: "valid with claim id",
			info: models.UserInfo{Name: "Jane Doe", ClaimID: "CLM-1042"},
		},
		{
			name: "valid with phone",
			info: models.UserInfo{Name: "Jane Doe", Phone: "+1 (555) 123-4567"},
		},
		{
			name:       "missing name",
			info:       models.UserInfo{ClaimID: "CLM-1042"},
			wantFields: []string{"name"},
		},
		{
			name:       "name too short",
			info:       models.UserInfo{Name: "J", ClaimID: "CLM-1042"},
			wantFields: []string{"name"},
		},
		{
			name:       "name too long",
			info:       models.UserInfo{Name: strings.Repeat("a", 101), ClaimID: "CLM-1042"},
			wantFields: []string{"name"},
		},
		{
			name:       "neither claim id nor phone",
			info:       models.UserInfo{Name: "Jane Doe"},
			wantFields: []string{"claimId"},
		},
		{
			name:       "claim id too long",
			info:       models.UserInfo{Name: "Jane Doe", ClaimID: strings.Repeat("x", 51)},
			wantFields: []string{"claimId"},
		},
		{
			name:       "phone with too few digits",
			info:       models.UserInfo{Name: "Jane Doe", Phone: "555-1234"},
			wantFields: []string{"phone"},
		},
		{
			name:       "phone with letters",
			info:       models.UserInfo{Name: "Jane Doe", Phone: "call me maybe 12345"},
			wantFields: []string{"phone"},
		},
		{
			name:       "location too long",
			info:       models.UserInfo{Name: "Jane Doe", ClaimID: "CLM-1042", Location: strings.Repeat("l", 201)},
			wantFields: []string{"location"},
		},
		{
			name: "both claim id and phone valid",
			info: models.UserInfo{Name: "Jane Doe", ClaimID: "CLM-1042", Phone: "5551234567"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fieldErrors := ValidateUserInfo(tt.info)

			if len(tt.wantFields) == 0 {
				assert.Empty(t, fieldErrors)
				return
			}

			require.Len(t, fieldErrors, len(tt.wantFields))
			for _, field := range tt.wantFields {
				assert.Contains(t, fieldErrors, field)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	svc := NewService(logger.NewNoOpLogger(), nil)

	info := models.UserInfo{
		Name:     "  Jane Doe  ",
		ClaimID:  " CLM-1042 ",
		Phone:    " 5551234567 ",
		Location: " 12 Main St ",
	}
	svc.Normalize(&info)

	assert.Equal(t, "Jane Doe", info.Name)
	assert.Equal(t, "CLM-1042", info.ClaimID)
	assert.Equal(t, "5551234567", info.Phone)
	assert.Equal(t, "12 Main St", info.Location)
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		name     string
		geocoder Geocoder
		want     string
	}{
		{
			name:     "resolved address",
			geocoder: &stubGeocoder{address: "12 Main St, Springfield"},
			want:     "12 Main St, Springfield",
		},
		{
			name:     "lookup failure falls back to coordinates",
			geocoder: &stubGeocoder{err: errors.New("upstream unavailable")},
			want:     "51.507400,-0.127800",
		},
		{
			name: "no geocoder configured",
			want: "51.507400,-0.127800",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(logger.NewNoOpLogger(), tt.geocoder)

			got := svc.ResolveLocation(context.Background(), 51.5074, -0.1278)
			assert.Equal(t, tt.want, got)
		})
	}
}
