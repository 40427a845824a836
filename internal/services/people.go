package services

import (
	"context"
	"errors"

	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Profile is the contact card shown for a conversation participant.
type Profile struct {
	Principal models.Principal `json:"principal"`
	Name      string           `json:"name"`
	Email     string           `json:"email,omitempty"`
	Phone     string           `json:"phone,omitempty"`
	AvatarURL string           `json:"avatarUrl,omitempty"`
	Title     string           `json:"title,omitempty"` // position for staff, company for clients
}

// PeopleDirectory resolves principals against the staff and client records.
type PeopleDirectory interface {
	Profile(ctx context.Context, p models.Principal) (*Profile, error)
	Names(ctx context.Context, ps []models.Principal) (map[string]string, error)
}

// GormPeople reads the employees and clients tables.
type GormPeople struct {
	db *gorm.DB
}

func NewGormPeople(db *gorm.DB) *GormPeople {
	return &GormPeople{db: db}
}

func (g *GormPeople) Profile(ctx context.Context, p models.Principal) (*Profile, error) {
	db := g.db.WithContext(ctx)

	switch p.Kind {
	case models.PrincipalEmployee:
		var e models.EmployeeProfile
		if err := db.First(&e, "id = ?", p.ID).Error; err != nil {
			return nil, profileError(err)
		}
		return &Profile{Principal: p, Name: e.Name, Email: e.Email, Phone: e.Phone, AvatarURL: e.AvatarURL, Title: e.Position}, nil
	case models.PrincipalClient:
		var c models.ClientProfile
		if err := db.First(&c, "id = ?", p.ID).Error; err != nil {
			return nil, profileError(err)
		}
		return &Profile{Principal: p, Name: c.Name, Email: c.Email, Phone: c.Phone, AvatarURL: c.AvatarURL, Title: c.Company}, nil
	default:
		return nil, apperrors.BadRequest("unknown principal kind")
	}
}

func (g *GormPeople) Names(ctx context.Context, ps []models.Principal) (map[string]string, error) {
	db := g.db.WithContext(ctx)
	names := make(map[string]string, len(ps))

	ids := func(kind models.PrincipalKind) []string {
		return lo.FilterMap(ps, func(p models.Principal, _ int) (string, bool) {
			return p.ID, p.Kind == kind
		})
	}

	if staff := ids(models.PrincipalEmployee); len(staff) > 0 {
		var rows []models.EmployeeProfile
		if err := db.Select("id", "name").Where("id IN ?", staff).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			names[models.Employee(r.ID).Key()] = r.Name
		}
	}

	if clients := ids(models.PrincipalClient); len(clients) > 0 {
		var rows []models.ClientProfile
		if err := db.Select("id", "name").Where("id IN ?", clients).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			names[models.Client(r.ID).Key()] = r.Name
		}
	}

	return names, nil
}

func profileError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("profile not found")
	}
	return apperrors.Persistence("profile lookup failed", err)
}
