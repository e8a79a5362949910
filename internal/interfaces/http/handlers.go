package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/report"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps    Dependencies
	version string
	logger  Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, version string, logger Logger) *Handlers {
	return &Handlers{
		deps:    deps,
		version: version,
		logger:  logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// CreateWorkflowBody is accepted by POST /api/workflows.
// Either Steps or Template must be given.
type CreateWorkflowBody struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Steps       []entity.Step     `json:"steps"`
	Template    string            `json:"template"`
	Parameters  map[string]string `json:"parameters"`
	Metadata    map[string]string `json:"metadata"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	status := http.StatusOK

	if h.deps.Health != nil {
		healthy, details := h.deps.Health(c.Request.Context())
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, resp)
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	ok(c, http.StatusOK, h.deps.Templates.List())
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var body CreateWorkflowBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	req := workflow.CreateWorkflowRequest{
		Name:        body.Name,
		Description: body.Description,
		Steps:       body.Steps,
		Metadata:    body.Metadata,
	}
	if claims := claimsFrom(c); claims != nil {
		req.CreatedBy = claims.UserID
	}

	if body.Template != "" {
		if len(body.Steps) > 0 {
			badRequest(c, "steps and template are mutually exclusive")
			return
		}
		tmpl, found := h.deps.Templates.Get(body.Template)
		if !found {
			c.JSON(http.StatusNotFound, Response{Success: false, Error: fmt.Sprintf("template %q not found", body.Template)})
			return
		}
		steps, err := tmpl.Instantiate(body.Parameters)
		if err != nil {
			badRequest(c, "invalid template parameters", err.Error())
			return
		}
		req.Steps = steps
		if req.Name == "" {
			req.Name = tmpl.Name
		}
		if req.Description == "" {
			req.Description = tmpl.Description
		}
		req.Metadata = mergeMetadata(tmpl.Metadata, body.Metadata)
		req.Metadata["template"] = tmpl.Name
	}

	id, err := h.deps.Orchestrator.CreateWorkflow(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "create_workflow", err)
		return
	}

	h.logger.Info("Workflow created", "workflow_id", id, "steps", len(req.Steps))
	h.respondSnapshot(c, http.StatusCreated, id)
}

// ListWorkflows handles GET /api/workflows.
// Without a status filter only active workflows are returned; status=all lists everything.
func (h *Handlers) ListWorkflows(c *gin.Context) {
	ctx := c.Request.Context()
	filter := strings.TrimSpace(c.Query("status"))

	var workflows []*entity.Workflow
	switch filter {
	case "":
		workflows = h.deps.Orchestrator.GetActiveWorkflows(ctx)
	case "all":
		workflows = h.deps.Orchestrator.ListWorkflows(ctx)
	default:
		var statuses []string
		for _, s := range strings.Split(filter, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				statuses = append(statuses, s)
			}
		}
		workflows = h.deps.Orchestrator.ListWorkflows(ctx, statuses...)
	}

	if workflows == nil {
		workflows = []*entity.Workflow{}
	}
	ok(c, http.StatusOK, workflows)
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	h.respondSnapshot(c, http.StatusOK, c.Param("id"))
}

// StartWorkflow handles POST /api/workflows/:id/start
func (h *Handlers) StartWorkflow(c *gin.Context) {
	h.lifecycle(c, "start_workflow", h.deps.Orchestrator.StartWorkflow)
}

// PauseWorkflow handles POST /api/workflows/:id/pause
func (h *Handlers) PauseWorkflow(c *gin.Context) {
	h.lifecycle(c, "pause_workflow", h.deps.Orchestrator.PauseWorkflow)
}

// ResumeWorkflow handles POST /api/workflows/:id/resume
func (h *Handlers) ResumeWorkflow(c *gin.Context) {
	h.lifecycle(c, "resume_workflow", h.deps.Orchestrator.ResumeWorkflow)
}

// CancelWorkflow handles POST /api/workflows/:id/cancel
func (h *Handlers) CancelWorkflow(c *gin.Context) {
	h.lifecycle(c, "cancel_workflow", h.deps.Orchestrator.CancelWorkflow)
}

// GetWorkflowHistory handles GET /api/workflows/:id/history
func (h *Handlers) GetWorkflowHistory(c *gin.Context) {
	history, err := h.deps.Orchestrator.GetWorkflowHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get_history", err)
		return
	}
	ok(c, http.StatusOK, history)
}

// ExportWorkflowHistory handles GET /api/workflows/:id/history/export
func (h *Handlers) ExportWorkflowHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	wf, found := h.deps.Orchestrator.GetWorkflow(ctx, id)
	if !found {
		h.writeError(c, "export_history", &workflow.NotFoundError{ID: id})
		return
	}
	history, err := h.deps.Orchestrator.GetWorkflowHistory(ctx, id)
	if err != nil {
		h.writeError(c, "export_history", err)
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Exporter.Export(wf, history, &buf); err != nil {
		h.writeError(c, "export_history", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.FileName(wf)))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

// ValidateStep handles POST /api/steps/validate
func (h *Handlers) ValidateStep(c *gin.Context) {
	var step entity.Step
	if err := c.ShouldBindJSON(&step); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}
	ok(c, http.StatusOK, h.deps.Orchestrator.ValidateWorkflowStep(step))
}

func (h *Handlers) lifecycle(c *gin.Context, op string, fn func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := fn(c.Request.Context(), id); err != nil {
		h.writeError(c, op, err)
		return
	}
	h.logger.Info("Workflow lifecycle operation", "operation", op, "workflow_id", id)
	h.respondSnapshot(c, http.StatusOK, id)
}

func (h *Handlers) respondSnapshot(c *gin.Context, status int, id string) {
	wf, found := h.deps.Orchestrator.GetWorkflow(c.Request.Context(), id)
	if !found {
		h.writeError(c, "get_workflow", &workflow.NotFoundError{ID: id})
		return
	}
	ok(c, status, wf)
}

func mergeMetadata(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override)+1)
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
