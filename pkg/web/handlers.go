package web

import (
	"net/http"
	"time"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/services"
	"github.com/flowion-ai/flowion/pkg/viz"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflows  *services.Workflow
	publishing *services.Publishing
	executions *services.Execution
	catalog    *services.NodeCatalog
	validator  *validator.Validate
}

func NewAPIHandlers(
	workflows *services.Workflow,
	publishing *services.Publishing,
	executions *services.Execution,
	catalog *services.NodeCatalog,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflows:  workflows,
		publishing: publishing,
		executions: executions,
		catalog:    catalog,
		validator:  validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowion API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowion API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"running_executions": len(h.executions.Running()),
		"timestamp":          time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	var status *models.WorkflowStatus

	if statusStr := c.Query("status"); statusStr != "" {
		parsed := models.WorkflowStatus(statusStr)
		status = &parsed
	}

	workflows, err := h.workflows.List(c.Context(), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflows.ByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Connections: req.Connections,
	}

	created, err := h.workflows.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflows.ByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Connections != nil {
		existing.Connections = req.Connections
	}

	updated, err := h.workflows.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflows.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	published, err := h.publishing.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) UnpublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	unpublished, err := h.publishing.Unpublish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(unpublished)
}

// GetWorkflowDiagram renders the workflow graph as a text diagram. The
// format query parameter selects Mermaid (default) or Graphviz DOT.
func (h *APIHandlers) GetWorkflowDiagram(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflows.ByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	format := viz.Format(c.Query("format", string(viz.FormatMermaid)))

	diagram, err := viz.Render(workflow, format)
	if err != nil {
		return badRequest(c, err.Error())
	}

	c.Type("txt")

	return c.SendString(diagram)
}

// StartExecution admits a run of the published workflow and returns its ID
// without waiting for the run to finish.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	executionID, err := h.executions.Start(c.Context(), id, req.Input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartExecutionResponse{ExecutionID: executionID})
}

func (h *APIHandlers) ListWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.executions.ByWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

// ListExecutions returns the executions currently held live by the engine.
func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	return c.JSON(h.executions.Running())
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executions.ByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	// The step log is empty rather than an error for unknown executions,
	// so check existence explicitly.
	if _, err := h.executions.ByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	steps, err := h.executions.Steps(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(steps)
}

func (h *APIHandlers) GetExecutionErrors(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if _, err := h.executions.ByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	execErrors, err := h.executions.Errors(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execErrors)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if !h.executions.Pause(c.Context(), id) {
		return notFound(c, "Execution not found or not running")
	}

	return c.JSON(ExecutionActionResponse{ExecutionID: id, Status: string(models.ExecutionStatusPaused)})
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if !h.executions.Resume(c.Context(), id) {
		return notFound(c, "Execution not found or not paused")
	}

	return c.JSON(ExecutionActionResponse{ExecutionID: id, Status: string(models.ExecutionStatusRunning)})
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if !h.executions.Stop(c.Context(), id) {
		return notFound(c, "Execution not found or already finished")
	}

	return c.JSON(ExecutionActionResponse{ExecutionID: id, Status: "stopping"})
}

func (h *APIHandlers) GetNodes(c fiber.Ctx) error {
	return c.JSON(h.catalog.Available())
}
