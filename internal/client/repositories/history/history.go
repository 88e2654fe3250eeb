// Package history keeps the capped, newest-first list of annotation set
// uploads. The whole list is stored as one JSON document under a fixed
// metadata key and rewritten on every change.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/metadata"
	"github.com/google/uuid"
)

const (
	Key             = "annotation_sets"
	DefaultCapacity = 50
)

// Record is the trimmed summary of one upload.
type Record struct {
	ID           string            `json:"id"`
	SetName      string            `json:"setName"`
	Timestamp    time.Time         `json:"timestamp"`
	Success      bool              `json:"success"`
	JSONSheetID  string            `json:"jsonSheetId,omitempty"`
	JSONSheetURL string            `json:"jsonSheetUrl,omitempty"`
	PDFFileID    string            `json:"pdfFileId,omitempty"`
	PDFFileURL   string            `json:"pdfFileUrl,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type Repository interface {
	Append(ctx context.Context, r Record) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error
}

type KVRepository struct {
	kv       metadata.Repository
	capacity int
}

// NewKVRepository stores history in kv, keeping at most capacity records.
// A non-positive capacity means DefaultCapacity.
func NewKVRepository(kv metadata.Repository, capacity int) *KVRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &KVRepository{kv: kv, capacity: capacity}
}

// Append puts r at the front of the list and drops the oldest records
// beyond capacity. A missing ID is generated.
func (h *KVRepository) Append(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := h.kv.Update(ctx, Key, func(cur []byte) ([]byte, error) {
		list, err := decode(cur)
		if err != nil {
			// an unreadable list is replaced rather than blocking uploads
			list = nil
		}
		list = append([]Record{r}, list...)
		if len(list) > h.capacity {
			list = list[:h.capacity]
		}
		return json.Marshal(list)
	})
	if err != nil {
		return Record{}, fmt.Errorf("append history: %w", err)
	}
	return r, nil
}

func (h *KVRepository) List(ctx context.Context) ([]Record, error) {
	raw, err := h.kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	list, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return list, nil
}

func (h *KVRepository) Clear(ctx context.Context) error {
	if err := h.kv.Delete(ctx, Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func decode(raw []byte) ([]Record, error) {
	if len(raw) == 0 {
		return []Record{}, nil
	}
	var list []Record
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []Record{}
	}
	return list, nil
}
