package repository

import (
	"context"
	"database/sql"
)

// AdvisorRepo handles advisors.
type AdvisorRepo struct {
	db DBTX
}

func NewAdvisorRepo(db DBTX) *AdvisorRepo { return &AdvisorRepo{db: db} }

func (r *AdvisorRepo) Insert(ctx context.Context, a Advisor) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO advisors(id, name, role, commission_rate, team_lead_id, override_rate, override_basis, active, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, a.ID, a.Name, a.Role, a.CommissionRate, a.TeamLeadID, a.OverrideRate, a.OverrideBasis, a.Active)
	return err
}

func (r *AdvisorRepo) Update(ctx context.Context, a Advisor) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE advisors SET name = ?, role = ?, commission_rate = ?, team_lead_id = ?,
	 override_rate = ?, override_basis = ?, active = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		a.Name, a.Role, a.CommissionRate, a.TeamLeadID, a.OverrideRate, a.OverrideBasis, a.Active, a.ID)
	return err
}

// Deactivate soft-deletes; historical attribution stays intact.
func (r *AdvisorRepo) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE advisors SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

func (r *AdvisorRepo) Get(ctx context.Context, id string) (*Advisor, error) {
	row := r.db.QueryRowContext(ctx, advisorCols+` WHERE id = ?`, id)
	a, err := scanAdvisor(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AdvisorRepo) List(ctx context.Context, activeOnly bool) ([]Advisor, error) {
	q := advisorCols
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Advisor
	for rows.Next() {
		a, err := scanAdvisor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const advisorCols = `SELECT id, name, role, commission_rate, team_lead_id, override_rate, override_basis, active, created_at, updated_at FROM advisors`

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAdvisor(row scanner) (Advisor, error) {
	var a Advisor
	var lead, basis sql.NullString
	var override sql.NullFloat64
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.CommissionRate, &lead, &override, &basis,
		&a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Advisor{}, err
	}
	if lead.Valid {
		a.TeamLeadID = &lead.String
	}
	if override.Valid {
		a.OverrideRate = &override.Float64
	}
	if basis.Valid {
		a.OverrideBasis = &basis.String
	}
	return a, nil
}
