package repository

import (
	"context"
	"database/sql"
	"strings"
)

// SettlementRepo handles monthly settlement statements.
type SettlementRepo struct {
	db DBTX
}

func NewSettlementRepo(db DBTX) *SettlementRepo { return &SettlementRepo{db: db} }

func (r *SettlementRepo) Insert(ctx context.Context, s SettlementStatement) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO settlement_statements(id, month, advisor_id, revision, gross, team_lead_deduction,
	 override_income, net, chargeback_total, payout, status, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, s.ID, s.Month, s.AdvisorID, s.Revision, s.GrossCents, s.TeamLeadDedCents,
		s.OverrideIncCents, s.NetCents, s.ChargebackCents, s.PayoutCents, s.Status)
	return err
}

// UpdateAmounts recomputes an existing (non-approved) revision in place and
// resets it to computed.
func (r *SettlementRepo) UpdateAmounts(ctx context.Context, s SettlementStatement) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE settlement_statements SET gross = ?, team_lead_deduction = ?, override_income = ?,
	 net = ?, chargeback_total = ?, payout = ?, status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		s.GrossCents, s.TeamLeadDedCents, s.OverrideIncCents, s.NetCents, s.ChargebackCents,
		s.PayoutCents, s.Status, s.ID)
	return err
}

func (r *SettlementRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE settlement_statements SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

func (r *SettlementRepo) Get(ctx context.Context, id string) (*SettlementStatement, error) {
	row := r.db.QueryRowContext(ctx, settlementCols+` WHERE id = ?`, id)
	s, err := scanSettlement(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Latest returns the highest revision for (month, advisor), or nil.
func (r *SettlementRepo) Latest(ctx context.Context, month, advisorID string) (*SettlementStatement, error) {
	row := r.db.QueryRowContext(ctx, settlementCols+` WHERE month = ? AND advisor_id = ? ORDER BY revision DESC LIMIT 1`, month, advisorID)
	s, err := scanSettlement(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SettlementFilters defines list filters.
type SettlementFilters struct {
	Month     string
	AdvisorID string
	Status    string
}

func (r *SettlementRepo) List(ctx context.Context, f SettlementFilters) ([]SettlementStatement, error) {
	var where []string
	var args []any
	if f.Month != "" {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	if f.AdvisorID != "" {
		where = append(where, "advisor_id = ?")
		args = append(args, f.AdvisorID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := settlementCols
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY month DESC, advisor_id, revision DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SettlementStatement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const settlementCols = `SELECT id, month, advisor_id, revision, gross, team_lead_deduction, override_income, net, chargeback_total, payout, status, created_at, updated_at FROM settlement_statements`

func scanSettlement(row scanner) (SettlementStatement, error) {
	var s SettlementStatement
	if err := row.Scan(&s.ID, &s.Month, &s.AdvisorID, &s.Revision, &s.GrossCents, &s.TeamLeadDedCents,
		&s.OverrideIncCents, &s.NetCents, &s.ChargebackCents, &s.PayoutCents, &s.Status,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return SettlementStatement{}, err
	}
	return s, nil
}
