package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/middleware"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/workflow"
)

type WorkflowHandler struct {
	service    *workflow.Service
	dispatcher EventDispatcher
	log        logrus.FieldLogger
}

func NewWorkflowHandler(service *workflow.Service, dispatcher EventDispatcher, log logrus.FieldLogger) *WorkflowHandler {
	return &WorkflowHandler{service: service, dispatcher: dispatcher, log: log}
}

func (h *WorkflowHandler) dispatch(c *gin.Context, events []models.Event) {
	dispatchCommitted(c, h.dispatcher, events)
}

type CreateProjectRequest struct {
	Name      string `json:"name" binding:"required"`
	ClientID  *uint  `json:"client_id"`
	OwnerID   *uint  `json:"owner_id"`
	MemberIDs []uint `json:"member_ids"`
}

func (h *WorkflowHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	project, err := h.service.CreateProject(c.Request.Context(), workflow.CreateProjectInput{
		Name:      req.Name,
		ClientID:  req.ClientID,
		OwnerID:   req.OwnerID,
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

type ProjectStatusRequest struct {
	Status models.ProjectStatus `json:"status" binding:"required"`
}

func (h *WorkflowHandler) ChangeProjectStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ProjectStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	project, events, err := h.service.ChangeProjectStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusOK, project)
}

type MemberRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (h *WorkflowHandler) AddMember(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.AddMember(c.Request.Context(), id, req.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

func (h *WorkflowHandler) CreateTask(c *gin.Context) {
	projectID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.service.CreateTask(c.Request.Context(), workflow.CreateTaskInput{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     due,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

type AssignRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (h *WorkflowHandler) AssignTask(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, events, err := h.service.AssignTask(c.Request.Context(), id, req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.dispatch(c, events)
	c.JSON(http.StatusOK, task)
}

func (h *WorkflowHandler) StartTask(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	task, err := h.service.StartTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *WorkflowHandler) CompleteTask(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	task, err := h.service.CompleteTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type TimeLogRequest struct {
	Minutes int    `json:"minutes" binding:"required,gt=0"`
	Note    string `json:"note"`
}

// LogTime records time against a task for the calling user.
func (h *WorkflowHandler) LogTime(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req TimeLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := h.service.LogTime(c.Request.Context(), id, userID, req.Minutes, req.Note)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
