// Package models defines the core domain models for node-based workflow automation.
package models

// CategoryType represents the category of a node.
type CategoryType string

const (
	CategoryTypeAction  CategoryType = "action"  // Regular action nodes
	CategoryTypeTrigger CategoryType = "trigger" // Trigger nodes (manual, schedule, webhook)
)

// Built-in trigger node types.
const (
	NodeTypeTriggerManual   = "trigger:manual"
	NodeTypeTriggerSchedule = "trigger:schedule"
	NodeTypeTriggerWebhook  = "trigger:webhook"
)

// DefaultOutputPort is the conventional output port for non-branching nodes.
// Connections that omit SourcePort are treated as originating from it.
const DefaultOutputPort = "main"

// Branch output ports emitted by branching nodes such as filter.
const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
)

// BranchResultKey is the reserved, engine-private context key a branching
// executor may set to signal which output port fired. The orchestrator
// consumes and clears it immediately; it never leaks into user context.
const BranchResultKey = "__filterResult"

// Node represents a node instance in a workflow graph.
type Node struct {
	ID       string         `json:"id"       validate:"required"`
	Type     string         `json:"type"     validate:"required"`
	Category CategoryType   `json:"category" validate:"required"`
	Name     string         `json:"name"`
	Config   map[string]any `json:"config"`
	Enabled  bool           `json:"enabled"`
}

func (n *Node) IsActionNode() bool {
	return n.Category == CategoryTypeAction
}

func (n *Node) IsTriggerNode() bool {
	return n.Category == CategoryTypeTrigger
}

// Connection is a directed edge between two nodes. SourcePort names the
// output port on the source node ("main" unless the source branches);
// TargetPort is optional and only meaningful to the target executor.
type Connection struct {
	ID         string `json:"id"`
	SourceNode string `json:"source_node" validate:"required"`
	TargetNode string `json:"target_node" validate:"required"`
	SourcePort string `json:"source_port,omitempty"`
	TargetPort string `json:"target_port,omitempty"`
}

// Output returns the effective source port of the connection.
func (c *Connection) Output() string {
	if c.SourcePort == "" {
		return DefaultOutputPort
	}

	return c.SourcePort
}

// NodeStatus defines the states published for a node during execution.
type NodeStatus string

const (
	NodeStatusLoading NodeStatus = "loading"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)
