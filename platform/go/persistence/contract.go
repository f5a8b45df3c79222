package persistence

import (
	"errors"
	"fmt"
	"time"
)

// ContractsTable is the default table holding one contract row per property.
const ContractsTable = "contracts"

// ContractRecord represents a row (or item) in the contracts table.
type ContractRecord struct {
	PropertyID     string    `db:"property_id" json:"property_id" dynamodbav:"property_id"`
	ContractID     string    `db:"contract_id" json:"contract_id" dynamodbav:"contract_id"`
	Address        string    `db:"address" json:"address" dynamodbav:"address"`
	SellerName     string    `db:"seller_name" json:"seller_name" dynamodbav:"seller_name"`
	Status         string    `db:"contract_status" json:"contract_status" dynamodbav:"contract_status"`
	CreatedAt      time.Time `db:"contract_created" json:"contract_created" dynamodbav:"contract_created"`
	LastModifiedOn time.Time `db:"contract_last_modified_on" json:"contract_last_modified_on" dynamodbav:"contract_last_modified_on"`
}

// StatusUpdate carries the fields written by a status transition.
// Stores never move contract_last_modified_on backwards: see NextModification.
type StatusUpdate struct {
	Status         string
	LastModifiedOn time.Time
}

// ModificationStep is the smallest increment stores apply to keep modification times strictly increasing.
const ModificationStep = time.Microsecond

// NextModification returns requested when it is after previous, and previous+ModificationStep otherwise.
func NextModification(previous, requested time.Time) time.Time {
	if requested.After(previous) {
		return requested
	}
	return previous.Add(ModificationStep)
}

var (
	// ErrContractNotFound indicates no row exists for the property.
	ErrContractNotFound = errors.New("contract not found")
	// ErrContractConditionFailed indicates a conditional write was rejected by the store.
	ErrContractConditionFailed = errors.New("contract condition check failed")
)

// ConditionError describes a rejected conditional write.
// CurrentStatus is empty when no row exists or the store did not report it.
type ConditionError struct {
	PropertyID    string
	CurrentStatus string
	Exists        bool
}

func (e *ConditionError) Error() string {
	if !e.Exists {
		return fmt.Sprintf("%s: property %q has no contract", ErrContractConditionFailed, e.PropertyID)
	}
	if e.CurrentStatus == "" {
		return fmt.Sprintf("%s: property %q", ErrContractConditionFailed, e.PropertyID)
	}
	return fmt.Sprintf("%s: property %q is %s", ErrContractConditionFailed, e.PropertyID, e.CurrentStatus)
}

func (e *ConditionError) Is(target error) bool {
	return target == ErrContractConditionFailed
}

func validateRecordForPut(rec ContractRecord) error {
	switch {
	case rec.PropertyID == "":
		return errors.New("property id is required")
	case rec.ContractID == "":
		return errors.New("contract id is required")
	case rec.Status == "":
		return errors.New("contract status is required")
	case rec.CreatedAt.IsZero() || rec.LastModifiedOn.IsZero():
		return errors.New("contract timestamps are required")
	}
	return nil
}
