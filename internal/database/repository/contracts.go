package repository

import (
	"context"
	"database/sql"
	"strings"
)

// ContractRepo handles canonical policy records.
type ContractRepo struct {
	db DBTX
}

func NewContractRepo(db DBTX) *ContractRepo { return &ContractRepo{db: db} }

func (r *ContractRepo) Insert(ctx context.Context, c Contract) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO contracts(id, policy_number, normalized_policy, alt_policy_number, normalized_alt_policy,
	 holder_name, normalized_holder, advisor_id, status, source, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, c.ID, c.PolicyNumber, c.NormalizedPolicy, c.AltPolicyNumber, c.NormalizedAltPolicy,
		c.HolderName, c.NormalizedHolder, c.AdvisorID, c.Status, c.Source)
	return err
}

// Update writes the full merged record. Merge policy is decided by the caller
// (a pure function), not here.
func (r *ContractRepo) Update(ctx context.Context, c Contract) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE contracts SET policy_number = ?, normalized_policy = ?, alt_policy_number = ?,
	 normalized_alt_policy = ?, holder_name = ?, normalized_holder = ?, advisor_id = ?,
	 status = ?, source = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		c.PolicyNumber, c.NormalizedPolicy, c.AltPolicyNumber, c.NormalizedAltPolicy,
		c.HolderName, c.NormalizedHolder, c.AdvisorID, c.Status, c.Source, c.ID)
	return err
}

func (r *ContractRepo) Get(ctx context.Context, id string) (*Contract, error) {
	row := r.db.QueryRowContext(ctx, contractCols+` WHERE id = ?`, id)
	return scanContractPtr(row)
}

func (r *ContractRepo) GetByNormalizedPolicy(ctx context.Context, key string) (*Contract, error) {
	row := r.db.QueryRowContext(ctx, contractCols+` WHERE normalized_policy = ?`, key)
	return scanContractPtr(row)
}

// ContractFilters defines list filters.
type ContractFilters struct {
	Status    string
	AdvisorID string
	Search    string
}

func (r *ContractRepo) List(ctx context.Context, f ContractFilters) ([]Contract, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.AdvisorID != "" {
		where = append(where, "advisor_id = ?")
		args = append(args, f.AdvisorID)
	}
	if f.Search != "" {
		where = append(where, "(policy_number LIKE ? OR holder_name LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}
	q := contractCols
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const contractCols = `SELECT id, policy_number, normalized_policy, alt_policy_number, normalized_alt_policy, holder_name, normalized_holder, advisor_id, status, source, created_at, updated_at FROM contracts`

func scanContract(row scanner) (Contract, error) {
	var c Contract
	var alt, altNorm, holder, holderNorm, advisor sql.NullString
	if err := row.Scan(&c.ID, &c.PolicyNumber, &c.NormalizedPolicy, &alt, &altNorm,
		&holder, &holderNorm, &advisor, &c.Status, &c.Source, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Contract{}, err
	}
	if alt.Valid {
		c.AltPolicyNumber = &alt.String
	}
	if altNorm.Valid {
		c.NormalizedAltPolicy = &altNorm.String
	}
	if holder.Valid {
		c.HolderName = &holder.String
	}
	if holderNorm.Valid {
		c.NormalizedHolder = &holderNorm.String
	}
	if advisor.Valid {
		c.AdvisorID = &advisor.String
	}
	return c, nil
}

func scanContractPtr(row *sql.Row) (*Contract, error) {
	c, err := scanContract(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
