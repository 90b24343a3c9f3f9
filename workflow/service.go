// Package workflow owns project and task mutations. Like the billing engine,
// each operation returns the events it produced instead of dispatching them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db    *gorm.DB
	clock func() time.Time
	log   logrus.FieldLogger
}

func NewService(db *gorm.DB, clock func() time.Time, log logrus.FieldLogger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{db: db, clock: clock, log: log}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func notFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}

func lockTask(tx *gorm.DB, id uint) (*models.Task, error) {
	var task models.Task
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, id).Error; err != nil {
		return nil, notFound(err, "task", id)
	}
	return &task, nil
}

type CreateTaskInput struct {
	ProjectID   uint
	Title       string
	Description string
	DueDate     *time.Time
}

func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: task title is required", ErrInvalidInput)
	}
	task := &models.Task{
		ProjectID:   in.ProjectID,
		Title:       title,
		Description: in.Description,
		Status:      models.TaskTodo,
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		task.DueDate = &due
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Project{}, in.ProjectID).Error; err != nil {
			return notFound(err, "project", in.ProjectID)
		}
		return tx.Create(task).Error
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// AssignTask hands a task to a user and emits task.assigned. Reassigning to
// the current assignee is a no-op.
func (s *Service) AssignTask(ctx context.Context, taskID, userID uint) (*models.Task, []models.Event, error) {
	var (
		task   *models.Task
		events []models.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if task.Status == models.TaskCompleted {
			return fmt.Errorf("%w: task %d is completed", ErrIllegalTransition, task.ID)
		}
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		if !user.IsActive {
			return fmt.Errorf("%w: user %d is inactive", ErrInvalidInput, userID)
		}
		if task.AssignedTo != nil && *task.AssignedTo == userID {
			return nil
		}
		if err := tx.Model(task).Update("assigned_to", userID).Error; err != nil {
			return fmt.Errorf("assign task: %w", err)
		}
		task.AssignedTo = &userID

		payload := map[string]string{
			models.PayloadAssigneeID: strconv.FormatUint(uint64(userID), 10),
			models.PayloadTitle:      task.Title,
		}
		if task.DueDate != nil {
			payload[models.PayloadDueDate] = task.DueDate.UTC().Format(time.RFC3339)
		}
		events = append(events, models.NewEvent(models.EventTaskAssigned, models.SubjectTask, task.ID, s.now(), payload))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.WithField("task", task.ID).WithField("assignee", userID).Info("task assigned")
	return task, events, nil
}

// StartTask moves a todo task to in_progress.
func (s *Service) StartTask(ctx context.Context, taskID uint) (*models.Task, error) {
	var task *models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskTodo {
			return fmt.Errorf("%w: task %d is %s", ErrIllegalTransition, task.ID, task.Status)
		}
		task.Status = models.TaskInProgress
		return tx.Model(task).Update("status", task.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) CompleteTask(ctx context.Context, taskID uint) (*models.Task, error) {
	var task *models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if task.Status == models.TaskCompleted {
			return fmt.Errorf("%w: task %d is already completed", ErrIllegalTransition, task.ID)
		}
		now := s.now()
		task.Status = models.TaskCompleted
		task.CompletedAt = &now
		return tx.Model(task).Updates(map[string]any{
			"status":       task.Status,
			"completed_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("task", task.ID).Info("task completed")
	return task, nil
}

var projectStatuses = map[models.ProjectStatus]bool{
	models.ProjectPlanning:  true,
	models.ProjectActive:    true,
	models.ProjectOnHold:    true,
	models.ProjectCompleted: true,
	models.ProjectCancelled: true,
}

// ChangeProjectStatus moves a project to status and emits
// project.status_changed with the old and new values. Setting the current
// status is a no-op.
func (s *Service) ChangeProjectStatus(ctx context.Context, projectID uint, status models.ProjectStatus) (*models.Project, []models.Event, error) {
	if !projectStatuses[status] {
		return nil, nil, fmt.Errorf("%w: unknown project status %q", ErrInvalidInput, status)
	}
	var (
		project models.Project
		events  []models.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&project, projectID).Error; err != nil {
			return notFound(err, "project", projectID)
		}
		if project.Status == status {
			return nil
		}
		previous := project.Status
		if err := tx.Model(&project).Update("status", status).Error; err != nil {
			return fmt.Errorf("update project status: %w", err)
		}
		project.Status = status
		events = append(events, models.NewEvent(models.EventProjectStatusChanged, models.SubjectProject, project.ID, s.now(), map[string]string{
			models.PayloadTitle:          project.Name,
			models.PayloadStatus:         string(status),
			models.PayloadPreviousStatus: string(previous),
		}))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &project, events, nil
}

// LogTime records minutes worked by a user on a task.
func (s *Service) LogTime(ctx context.Context, taskID, userID uint, minutes int, note string) (*models.TimeLog, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("%w: minutes must be positive", ErrInvalidInput)
	}
	entry := &models.TimeLog{
		TaskID:   taskID,
		UserID:   userID,
		Minutes:  minutes,
		Note:     strings.TrimSpace(note),
		LoggedAt: s.now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Task{}, taskID).Error; err != nil {
			return notFound(err, "task", taskID)
		}
		if err := tx.Select("id").First(&models.User{}, userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DueTasks returns open, assigned tasks due within [now, now+24h]. With
// includeOverdue, tasks already past their due date are returned as well.
func (s *Service) DueTasks(ctx context.Context, now time.Time, includeOverdue bool) ([]models.Task, error) {
	now = now.UTC()
	q := s.db.WithContext(ctx).
		Where("status <> ?", models.TaskCompleted).
		Where("assigned_to IS NOT NULL").
		Where("due_date IS NOT NULL")
	if includeOverdue {
		q = q.Where("due_date <= ?", now.Add(24*time.Hour))
	} else {
		q = q.Where("due_date >= ? AND due_date <= ?", now, now.Add(24*time.Hour))
	}
	var tasks []models.Task
	if err := q.Order("due_date, id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return tasks, nil
}
