package models

import (
	"time"

	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

type Project struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	ClientID  *uint          `gorm:"index" json:"client_id"`
	OwnerID   *uint          `gorm:"index" json:"owner_id"`
	Owner     *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members   []User         `gorm:"many2many:project_members;" json:"members,omitempty"`
	Status    ProjectStatus  `gorm:"size:20;not null;default:'planning'" json:"status"`
}

// TableName overrides the table name
func (Project) TableName() string {
	return "projects"
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	ProjectID   uint           `gorm:"not null;index" json:"project_id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      TaskStatus     `gorm:"size:20;not null;default:'todo';index" json:"status"`
	AssignedTo  *uint          `gorm:"index" json:"assigned_to"`
	Assignee    *User          `gorm:"foreignKey:AssignedTo" json:"assignee,omitempty"`
	DueDate     *time.Time     `gorm:"index" json:"due_date"`
	CompletedAt *time.Time     `json:"completed_at"`
}

// TableName overrides the table name
func (Task) TableName() string {
	return "tasks"
}

type TimeLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TaskID    uint      `gorm:"not null;index" json:"task_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Minutes   int       `gorm:"not null" json:"minutes"`
	Note      string    `gorm:"type:text" json:"note"`
	LoggedAt  time.Time `json:"logged_at"`
}

// TableName overrides the table name
func (TimeLog) TableName() string {
	return "time_logs"
}
