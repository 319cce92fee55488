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

// ExecutionRepository stores one JSON document per execution record. The
// idempotency key (TriggerEventID, WorkflowID) is resolved by scanning, which
// is acceptable at the scale file persistence is meant for.
type ExecutionRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewExecutionRepository(dir string) *ExecutionRepository {
	return &ExecutionRepository{dir: dir}
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *ExecutionRepository) CreateOrGet(_ context.Context, record *models.ExecutionRecord) (*models.ExecutionRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.findByTriggerEvent(record.TriggerEventID, record.WorkflowID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		return existing, false, nil
	}

	if err := r.write(record); err != nil {
		return nil, false, err
	}

	return record, true, nil
}

func (r *ExecutionRepository) Update(_ context.Context, record *models.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(record)
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := os.Stat(r.path(id)); os.IsNotExist(err) {
		return nil, persistence.NewStorageError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	return r.read(r.path(id))
}

func (r *ExecutionRepository) GetByTriggerEvent(_ context.Context, triggerEventID, workflowID string) (*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.findByTriggerEvent(triggerEventID, workflowID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, persistence.NewStorageError("GetByTriggerEvent", "execution", triggerEventID, persistence.ErrExecutionNotFound)
	}

	return record, nil
}

func (r *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, err := r.readAll()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ExecutionRecord, 0)

	for _, record := range records {
		if record.WorkflowID == workflowID {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].StartedAt.After(matched[j].StartedAt) })

	return matched, nil
}

func (r *ExecutionRepository) MarkFailed(_ context.Context, triggerEventID, workflowID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.findByTriggerEvent(triggerEventID, workflowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	if record == nil {
		record = &models.ExecutionRecord{
			ID:             triggerEventID + ":" + workflowID,
			WorkflowID:     workflowID,
			TriggerEventID: triggerEventID,
			StartedAt:      now,
		}
	}

	if record.Finished() {
		return nil
	}

	record.Status = models.ExecutionStatusFailed
	record.Error = message
	record.CompletedAt = &now

	return r.write(record)
}

func (r *ExecutionRepository) findByTriggerEvent(triggerEventID, workflowID string) (*models.ExecutionRecord, error) {
	records, err := r.readAll()
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.TriggerEventID == triggerEventID && record.WorkflowID == workflowID {
			return record, nil
		}
	}

	return nil, nil
}

func (r *ExecutionRepository) readAll() ([]*models.ExecutionRecord, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, persistence.NewStorageError("readAll", "execution", "", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := r.read(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (r *ExecutionRepository) read(path string) (*models.ExecutionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, persistence.NewStorageError("read", "execution", path, err)
	}

	var record models.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, persistence.NewStorageError("read", "execution", path, err)
	}

	return &record, nil
}

func (r *ExecutionRepository) write(record *models.ExecutionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewStorageError("write", "execution", record.ID, err)
	}

	if err := os.WriteFile(r.path(record.ID), data, 0o644); err != nil {
		return persistence.NewStorageError("write", "execution", record.ID, err)
	}

	return nil
}
