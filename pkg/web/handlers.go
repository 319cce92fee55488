// Package web provides the REST API for running workflows, inspecting
// executions, and managing schedules.
package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/graph"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

type APIHandlers struct {
	store     persistence.Persistence
	publisher eventbus.EventPublisher
	validator *validator.Validate
}

func NewAPIHandlers(store persistence.Persistence, publisher eventbus.EventPublisher, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		store:     store,
		publisher: publisher,
		validator: validate,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.store.WorkflowRepository().GetAll(c.Context())
	if err != nil {
		return handleStorageError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.WorkflowRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStorageError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid workflow payload: "+err.Error())
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
		workflow.CreatedAt = time.Now().UTC()
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := h.validator.Struct(&workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.WorkflowRepository().Save(c.Context(), &workflow); err != nil {
		return handleStorageError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

type runWorkflowRequest struct {
	NodeID      string         `json:"node_id"`
	InitialData map[string]any `json:"initial_data"`
}

// RunWorkflow accepts a manual run request. The graph is cycle-checked here,
// before dispatch; the orchestrator relies on this pre-flight and does not
// re-validate per run.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.WorkflowRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStorageError(c, err)
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return unprocessable(c, "workflow_not_executable", "workflow is not published")
	}

	hasCycle, path, err := graph.DetectCycle(workflow.Nodes, workflow.Connections)
	if err != nil {
		return handleStorageError(c, err)
	}

	if hasCycle {
		return unprocessable(c, "cyclic_graph", (&graph.CycleError{Path: path}).Error())
	}

	var req runWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid run payload: "+err.Error())
		}
	}

	manualPayload := map[string]any{
		"triggeredAt": time.Now().UTC().Format(time.RFC3339),
	}
	if req.NodeID != "" {
		manualPayload["nodeId"] = req.NodeID
	}

	initialData := map[string]any{events.ManualTriggerKey: manualPayload}
	for key, value := range req.InitialData {
		initialData[key] = value
	}

	event := events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, workflow.ID),
		InitialData: initialData,
	}

	if err := h.publisher.Publish(c.Context(), workflow.ID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"trigger_event_id": event.ID,
		"execution_id":     event.ID + ":" + workflow.ID,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	record, err := h.store.ExecutionRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStorageError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ListWorkflowExecutions(c fiber.Ctx) error {
	records, err := h.store.ExecutionRepository().ListByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleStorageError(c, err)
	}

	return c.JSON(fiber.Map{"executions": records})
}

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var schedule models.ScheduledWorkflow
	if err := c.Bind().JSON(&schedule); err != nil {
		return badRequest(c, "Invalid schedule payload: "+err.Error())
	}

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.Enabled = true

	if err := h.validator.Struct(&schedule); err != nil {
		return badRequest(c, err.Error())
	}

	if err := schedule.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.store.WorkflowRepository().GetByID(c.Context(), schedule.WorkflowID); err != nil {
		return handleStorageError(c, err)
	}

	next, err := schedule.NextOccurrence(now)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if schedule.Expired(next) {
		return unprocessable(c, "schedule_expired", models.ErrScheduleExpired.Error())
	}

	schedule.NextRunAt = &next

	if err := h.store.ScheduleRepository().Save(c.Context(), &schedule); err != nil {
		return handleStorageError(c, err)
	}

	start := events.ScheduleStart{
		BaseEvent:  events.NewBaseEvent(events.ScheduleStartEvent, schedule.WorkflowID),
		ScheduleID: schedule.ID,
	}

	if err := h.publisher.Publish(c.Context(), schedule.ID, start); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	schedule, err := h.store.ScheduleRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStorageError(c, err)
	}

	return c.JSON(schedule)
}

// CancelSchedule disables the schedule row and signals the sleeping chain to
// abort. A firing already in flight completes normally.
func (h *APIHandlers) CancelSchedule(c fiber.Ctx) error {
	schedule, err := h.store.ScheduleRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStorageError(c, err)
	}

	schedule.Enabled = false
	schedule.NextRunAt = nil
	schedule.UpdatedAt = time.Now().UTC()

	if err := h.store.ScheduleRepository().Save(c.Context(), schedule); err != nil {
		return handleStorageError(c, err)
	}

	cancel := events.ScheduleCancel{
		BaseEvent:  events.NewBaseEvent(events.ScheduleCancelEvent, schedule.WorkflowID),
		ScheduleID: schedule.ID,
	}

	if err := h.publisher.Publish(c.Context(), schedule.ID, cancel); err != nil {
		return internalError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
