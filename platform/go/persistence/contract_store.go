package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const contractColumns = `property_id, contract_id, address, seller_name, contract_status, contract_created, contract_last_modified_on`

// ContractStore exposes conditional-write helpers for the contracts table in Postgres.
// Row-level locking on the primary key makes every write atomic per property.
type ContractStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewContractStore returns a store bound to the given table (ContractsTable when empty).
// It assumes the DDL in database/schema/contracts.sql has been applied.
func NewContractStore(pool *pgxpool.Pool, table string) (*ContractStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = ContractsTable
	}
	name, err := normalizeTableName(table)
	if err != nil {
		return nil, err
	}

	return &ContractStore{pool: pool, table: name}, nil
}

// PutIfAbsentOrTerminal inserts rec when no row exists for its property, or replaces the existing row
// when its status is one of replaceable. Any other existing row rejects the write with a *ConditionError.
func (s *ContractStore) PutIfAbsentOrTerminal(ctx context.Context, rec ContractRecord, replaceable []string) (ContractRecord, error) {
	if err := validateRecordForPut(rec); err != nil {
		return ContractRecord{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO %[1]s (%[2]s)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (property_id) DO UPDATE SET
            contract_id = EXCLUDED.contract_id,
            address = EXCLUDED.address,
            seller_name = EXCLUDED.seller_name,
            contract_status = EXCLUDED.contract_status,
            contract_created = EXCLUDED.contract_created,
            contract_last_modified_on = EXCLUDED.contract_last_modified_on
        WHERE %[1]s.contract_status = ANY($8)
        RETURNING %[2]s
    `, s.table, contractColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.PropertyID,
		rec.ContractID,
		rec.Address,
		rec.SellerName,
		rec.Status,
		rec.CreatedAt,
		rec.LastModifiedOn,
		replaceable,
	)

	stored, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractRecord{}, s.conditionError(ctx, rec.PropertyID)
		}
		return ContractRecord{}, fmt.Errorf("put contract: %w", err)
	}

	return stored, nil
}

// UpdateIfCurrentStatus applies update to the row for propertyID only when its status equals expected.
// The stored modification time only moves forward (see NextModification).
func (s *ContractStore) UpdateIfCurrentStatus(ctx context.Context, propertyID, expected string, update StatusUpdate) (ContractRecord, error) {
	if propertyID == "" {
		return ContractRecord{}, errors.New("property id is required")
	}
	if update.Status == "" || update.LastModifiedOn.IsZero() {
		return ContractRecord{}, errors.New("status and modification time are required")
	}

	query := fmt.Sprintf(`
        UPDATE %s
        SET contract_status = $1,
            contract_last_modified_on = GREATEST($2, contract_last_modified_on + interval '1 microsecond')
        WHERE property_id = $3 AND contract_status = $4
        RETURNING %s
    `, s.table, contractColumns)

	row := s.pool.QueryRow(ctx, query, update.Status, update.LastModifiedOn, propertyID, expected)

	stored, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractRecord{}, s.conditionError(ctx, propertyID)
		}
		return ContractRecord{}, fmt.Errorf("update contract: %w", err)
	}

	return stored, nil
}

// GetContract returns the row for propertyID.
func (s *ContractStore) GetContract(ctx context.Context, propertyID string) (ContractRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE property_id = $1
    `, contractColumns, s.table), propertyID)

	rec, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContractRecord{}, ErrContractNotFound
		}
		return ContractRecord{}, fmt.Errorf("get contract: %w", err)
	}

	return rec, nil
}

// conditionError reads the current status to describe a rejected write. The read happens after the
// write was rejected, so it is informational only.
func (s *ContractStore) conditionError(ctx context.Context, propertyID string) error {
	condErr := &ConditionError{PropertyID: propertyID}

	var status string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT contract_status FROM %s WHERE property_id = $1`, s.table), propertyID).Scan(&status)
	switch {
	case err == nil:
		condErr.Exists = true
		condErr.CurrentStatus = status
	case errors.Is(err, pgx.ErrNoRows):
	default:
		// status lookup failed; still report the rejection
		condErr.Exists = true
	}

	return condErr
}

func scanContract(row pgx.Row) (ContractRecord, error) {
	var rec ContractRecord

	if err := row.Scan(
		&rec.PropertyID,
		&rec.ContractID,
		&rec.Address,
		&rec.SellerName,
		&rec.Status,
		&rec.CreatedAt,
		&rec.LastModifiedOn,
	); err != nil {
		return ContractRecord{}, err
	}

	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastModifiedOn = rec.LastModifiedOn.UTC()
	return rec, nil
}
