package repo

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/zenGate-Global/palmyra-contracts/platform/go/persistence"
)

// MemoryRepository is an in-process Repository with the same conditional semantics as the real stores.
// It is suitable for tests and local development.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]persistence.ContractRecord
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]persistence.ContractRecord)}
}

// Seed stores rec unconditionally.
func (r *MemoryRepository) Seed(rec persistence.ContractRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[rec.PropertyID] = rec
}

func (r *MemoryRepository) PutIfAbsentOrTerminal(ctx context.Context, rec persistence.ContractRecord, replaceable []string) (persistence.ContractRecord, error) {
	if rec.PropertyID == "" {
		return persistence.ContractRecord{}, errors.New("property id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.items[rec.PropertyID]; ok && !slices.Contains(replaceable, current.Status) {
		return persistence.ContractRecord{}, &persistence.ConditionError{
			PropertyID:    rec.PropertyID,
			CurrentStatus: current.Status,
			Exists:        true,
		}
	}

	r.items[rec.PropertyID] = rec
	return rec, nil
}

func (r *MemoryRepository) UpdateIfCurrentStatus(ctx context.Context, propertyID, expected string, update persistence.StatusUpdate) (persistence.ContractRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[propertyID]
	if !ok {
		return persistence.ContractRecord{}, &persistence.ConditionError{PropertyID: propertyID}
	}
	if current.Status != expected {
		return persistence.ContractRecord{}, &persistence.ConditionError{
			PropertyID:    propertyID,
			CurrentStatus: current.Status,
			Exists:        true,
		}
	}

	current.Status = update.Status
	current.LastModifiedOn = persistence.NextModification(current.LastModifiedOn, update.LastModifiedOn)
	r.items[propertyID] = current
	return current, nil
}

func (r *MemoryRepository) Get(ctx context.Context, propertyID string) (persistence.ContractRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[propertyID]
	if !ok {
		return persistence.ContractRecord{}, persistence.ErrContractNotFound
	}
	return rec, nil
}
