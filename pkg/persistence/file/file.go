// Package file provides file-based persistence for local development and
// tests. Each aggregate is stored as one JSON document per entity under its
// own subdirectory of the root.
package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomhq/loom/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	scheduleRepo  *ScheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, sub := range []string{"workflows", "executions", "schedules"} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, sub), 0o755); err != nil {
			return nil, err
		}
	}

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(filepath.Join(cleanRoot, "workflows")),
		executionRepo: NewExecutionRepository(filepath.Join(cleanRoot, "executions")),
		scheduleRepo:  NewScheduleRepository(filepath.Join(cleanRoot, "schedules")),
	}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}
