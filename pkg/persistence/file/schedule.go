package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// ScheduleRepository stores one JSON document per schedule.
type ScheduleRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewScheduleRepository(dir string) *ScheduleRepository {
	return &ScheduleRepository{dir: dir}
}

func (r *ScheduleRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *ScheduleRepository) GetAll(_ context.Context) ([]*models.ScheduledWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readAll()
}

func (r *ScheduleRepository) GetByID(_ context.Context, id string) (*models.ScheduledWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := os.Stat(r.path(id)); os.IsNotExist(err) {
		return nil, persistence.NewStorageError("GetByID", "schedule", id, persistence.ErrScheduleNotFound)
	}

	return r.read(r.path(id))
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.ScheduledWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return persistence.NewStorageError("Save", "schedule", schedule.ID, err)
	}

	if err := os.WriteFile(r.path(schedule.ID), data, 0o644); err != nil {
		return persistence.NewStorageError("Save", "schedule", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStorageError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
		}

		return persistence.NewStorageError("Delete", "schedule", id, err)
	}

	return nil
}

func (r *ScheduleRepository) DueSchedules(_ context.Context, at time.Time) ([]*models.ScheduledWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules, err := r.readAll()
	if err != nil {
		return nil, err
	}

	due := make([]*models.ScheduledWorkflow, 0)

	for _, schedule := range schedules {
		if !schedule.Enabled || schedule.NextRunAt == nil {
			continue
		}

		if !schedule.NextRunAt.After(at) {
			due = append(due, schedule)
		}
	}

	return due, nil
}

func (r *ScheduleRepository) readAll() ([]*models.ScheduledWorkflow, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, persistence.NewStorageError("readAll", "schedule", "", err)
	}

	schedules := make([]*models.ScheduledWorkflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		schedule, err := r.read(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })

	return schedules, nil
}

func (r *ScheduleRepository) read(path string) (*models.ScheduledWorkflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, persistence.NewStorageError("read", "schedule", path, err)
	}

	var schedule models.ScheduledWorkflow
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, persistence.NewStorageError("read", "schedule", path, err)
	}

	return &schedule, nil
}
