package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
)

// DBDirectory resolves recipients from the users and projects tables.
type DBDirectory struct {
	db *gorm.DB
}

func NewDBDirectory(db *gorm.DB) *DBDirectory {
	return &DBDirectory{db: db}
}

func toRecipient(u models.User) Recipient {
	return Recipient{UserID: u.ID, Name: u.Name, Email: u.Email}
}

func (d *DBDirectory) Admins(ctx context.Context) ([]Recipient, error) {
	var users []models.User
	err := d.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	out := make([]Recipient, 0, len(users))
	for _, u := range users {
		out = append(out, toRecipient(u))
	}
	return out, nil
}

func (d *DBDirectory) User(ctx context.Context, id uint) (Recipient, error) {
	var u models.User
	if err := d.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Recipient{}, fmt.Errorf("%w: user %d", ErrUnknownRecipient, id)
		}
		return Recipient{}, fmt.Errorf("load user %d: %w", id, err)
	}
	if !u.IsActive {
		return Recipient{}, fmt.Errorf("%w: user %d is inactive", ErrUnknownRecipient, id)
	}
	return toRecipient(u), nil
}

// ProjectTeam returns the active owner and members of a project.
func (d *DBDirectory) ProjectTeam(ctx context.Context, projectID uint) ([]Recipient, error) {
	var project models.Project
	err := d.db.WithContext(ctx).Preload("Owner").Preload("Members").First(&project, projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: project %d", ErrUnknownRecipient, projectID)
		}
		return nil, fmt.Errorf("load project %d: %w", projectID, err)
	}
	var out []Recipient
	if project.Owner != nil && project.Owner.IsActive {
		out = append(out, toRecipient(*project.Owner))
	}
	for _, m := range project.Members {
		if m.IsActive {
			out = append(out, toRecipient(m))
		}
	}
	return out, nil
}
