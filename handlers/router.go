package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/billflow/billing"
	"github.com/yourusername/billflow/config"
	"github.com/yourusername/billflow/middleware"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/notify"
	"github.com/yourusername/billflow/workflow"
	"gorm.io/gorm"
)

// EventDispatcher delivers the events an operation produced once its
// transaction has committed.
type EventDispatcher interface {
	DispatchAll(ctx context.Context, events []models.Event) notify.Result
}

// dispatchCommitted delivers events for an operation that has already
// committed. The request context is detached from cancellation: a client
// that disconnects must not drop the notifications for a change it made.
// Delivery problems are logged by the dispatcher and never change the
// response.
func dispatchCommitted(c *gin.Context, d EventDispatcher, events []models.Event) {
	if d == nil || len(events) == 0 {
		return
	}
	d.DispatchAll(context.WithoutCancel(c.Request.Context()), events)
}

type Deps struct {
	DB         *gorm.DB
	Cfg        *config.Config
	Engine     *billing.Engine
	Workflow   *workflow.Service
	Dispatcher EventDispatcher
	Inbox      *notify.Inbox
	Log        logrus.FieldLogger
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "billflow-api",
		})
	})

	auth := NewAuthHandler(d.DB, d.Cfg)
	router.POST("/auth/refresh", auth.Refresh)

	docs := NewBillingHandler(d.Engine, d.Dispatcher, d.Log)
	dash := NewDashboardHandler(d.Engine, d.Log)
	work := NewWorkflowHandler(d.Workflow, d.Dispatcher, d.Log)
	inbox := NewNotificationHandler(d.Inbox, d.Engine.Now, d.Log)

	office := middleware.RequireRole(models.RoleAdmin, models.RoleOperator)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	api := router.Group("/api/v1")
	api.Use(middleware.JwtAuthMiddleware(d.Cfg.JWTSecret))
	{
		api.POST("/quotations", office, docs.CreateQuotation)
		api.GET("/quotations/:id", docs.GetQuotation)
		api.PUT("/quotations/:id/items", office, docs.UpdateQuotationItems)
		api.POST("/quotations/:id/transition", office, docs.TransitionQuotation)
		api.POST("/quotations/:id/invoice", office, docs.ConvertQuotation)
		api.DELETE("/quotations/:id", office, docs.DeleteQuotation)

		api.POST("/invoices", office, docs.CreateInvoice)
		api.GET("/invoices/:id", docs.GetInvoice)
		api.POST("/invoices/:id/send", office, docs.SendInvoice)
		api.POST("/invoices/:id/cancel", office, docs.CancelInvoice)
		api.POST("/invoices/:id/recompute", adminOnly, docs.RecomputeInvoice)
		api.DELETE("/invoices/:id", adminOnly, docs.DeleteInvoice)
		api.POST("/invoices/:id/payments", office, docs.ApplyPayment)

		api.PUT("/payments/:id", adminOnly, docs.CorrectPayment)
		api.DELETE("/payments/:id", adminOnly, docs.DeletePayment)

		api.GET("/dashboard/overdue-invoices", dash.OverdueInvoices)
		api.GET("/dashboard/invoices-due", dash.InvoicesDue)
		api.GET("/dashboard/pending-quotations", dash.PendingQuotations)

		api.POST("/projects", office, work.CreateProject)
		api.POST("/projects/:id/status", office, work.ChangeProjectStatus)
		api.POST("/projects/:id/members", office, work.AddMember)
		api.POST("/projects/:id/tasks", work.CreateTask)
		api.POST("/tasks/:id/assign", work.AssignTask)
		api.POST("/tasks/:id/start", work.StartTask)
		api.POST("/tasks/:id/complete", work.CompleteTask)
		api.POST("/tasks/:id/time", work.LogTime)

		api.GET("/notifications", inbox.List)
		api.POST("/notifications/:id/read", inbox.MarkRead)
	}

	return router
}
