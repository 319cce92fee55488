// Package trigger provides the built-in trigger node executors. Trigger
// nodes are pass-through at execution time: the triggering event's payload is
// already seeded into the execution context before the walk starts, so the
// executor only surfaces the firing under a stable context key.
package trigger

import (
	"context"

	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
)

type executor struct {
	payloadKey string
}

func (e *executor) Execute(_ context.Context, input protocol.ExecutionInput) (protocol.ExecutionResult, error) {
	next := input.Context

	if payload, ok := input.Context[e.payloadKey]; ok {
		next = input.Context.Clone()
		next["trigger"] = payload
	}

	return protocol.ExecutionResult{Context: next}, nil
}

type factory struct {
	id          string
	name        string
	description string
	payloadKey  string
}

func (f *factory) ID() string                   { return f.id }
func (f *factory) Name() string                 { return f.name }
func (f *factory) Description() string          { return f.description }
func (f *factory) ConfigSchema() map[string]any { return nil }

func (f *factory) Create(_ context.Context, _ map[string]any) (protocol.NodeExecutor, error) {
	return &executor{payloadKey: f.payloadKey}, nil
}

func NewManualFactory() protocol.NodeExecutorFactory {
	return &factory{
		id:          models.NodeTypeTriggerManual,
		name:        "Manual Trigger",
		description: "Starts a workflow from a manual run request.",
		payloadKey:  events.ManualTriggerKey,
	}
}

func NewScheduleFactory() protocol.NodeExecutorFactory {
	return &factory{
		id:          models.NodeTypeTriggerSchedule,
		name:        "Schedule Trigger",
		description: "Starts a workflow from a recurring schedule firing.",
		payloadKey:  events.ScheduleTriggerKey,
	}
}

func NewWebhookFactory() protocol.NodeExecutorFactory {
	return &factory{
		id:          models.NodeTypeTriggerWebhook,
		name:        "Webhook Trigger",
		description: "Starts a workflow from an inbound webhook delivery.",
		payloadKey:  events.WebhookTriggerKey,
	}
}
