package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
)

type CreateProjectInput struct {
	Name      string
	ClientID  *uint
	OwnerID   *uint
	MemberIDs []uint
}

// CreateProject starts a project in planning with its owner and members.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	project := &models.Project{
		Name:     name,
		ClientID: in.ClientID,
		OwnerID:  in.OwnerID,
		Status:   models.ProjectPlanning,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.OwnerID != nil {
			if err := tx.Select("id").First(&models.User{}, *in.OwnerID).Error; err != nil {
				return notFound(err, "user", *in.OwnerID)
			}
		}
		if len(in.MemberIDs) > 0 {
			if err := tx.Find(&project.Members, in.MemberIDs).Error; err != nil {
				return fmt.Errorf("load members: %w", err)
			}
			if len(project.Members) != len(uniqueIDs(in.MemberIDs)) {
				return fmt.Errorf("%w: unknown project member", ErrNotFound)
			}
		}
		return tx.Create(project).Error
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// AddMember adds a user to a project team. Adding an existing member is a
// no-op.
func (s *Service) AddMember(ctx context.Context, projectID, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			return notFound(err, "project", projectID)
		}
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		if err := tx.Model(&project).Association("Members").Append(&user); err != nil {
			return fmt.Errorf("add project member: %w", err)
		}
		return nil
	})
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen
}
