package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// CommissionRepo handles commission lines. Commissions are never deleted;
// matching and splits only ever update them.
type CommissionRepo struct {
	db DBTX
}

func NewCommissionRepo(db DBTX) *CommissionRepo { return &CommissionRepo{db: db} }

func (r *CommissionRepo) Insert(ctx context.Context, c Commission) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO commissions(id, batch_id, policy_number, normalized_policy, amount, kind, payment_date,
	 installment_index, installment_count, broker_name, normalized_broker, holder_name, normalized_holder,
	 match_status, confidence, contract_id, advisor_id, advisor_share, team_lead_share, agency_share,
	 row_fingerprint, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, c.ID, c.BatchID, c.PolicyNumber, c.NormalizedPolicy, c.AmountCents, c.Kind, c.PaymentDate,
		c.InstallmentIndex, c.InstallmentCount, c.BrokerName, c.NormalizedBroker, c.HolderName, c.NormalizedHolder,
		c.MatchStatus, c.Confidence, c.ContractID, c.AdvisorID, c.AdvisorShare, c.TeamLeadShare, c.AgencyShare,
		c.RowFingerprint)
	return err
}

func (r *CommissionRepo) Get(ctx context.Context, id string) (*Commission, error) {
	row := r.db.QueryRowContext(ctx, commissionCols+` WHERE id = ?`, id)
	c, err := scanCommission(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdateSplit writes the three computed shares for a matched commission.
func (r *CommissionRepo) UpdateSplit(ctx context.Context, id string, advisorShare, teamLeadShare, agencyShare int64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE commissions SET advisor_share = ?, team_lead_share = ?, agency_share = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, advisorShare, teamLeadShare, agencyShare, id)
	return err
}

// CommissionFilters defines list filters.
type CommissionFilters struct {
	MatchStatus string
	BatchID     string
	AdvisorID   string
	ContractID  string
	From        time.Time
	To          time.Time
	Limit       int
}

func (r *CommissionRepo) List(ctx context.Context, f CommissionFilters) ([]Commission, error) {
	var where []string
	var args []any
	if f.MatchStatus != "" {
		where = append(where, "match_status = ?")
		args = append(args, f.MatchStatus)
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.AdvisorID != "" {
		where = append(where, "advisor_id = ?")
		args = append(args, f.AdvisorID)
	}
	if f.ContractID != "" {
		where = append(where, "contract_id = ?")
		args = append(args, f.ContractID)
	}
	if !f.From.IsZero() {
		where = append(where, "payment_date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "payment_date < ?")
		args = append(args, f.To)
	}
	q := commissionCols
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY payment_date DESC, created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const commissionCols = `SELECT id, batch_id, policy_number, normalized_policy, amount, kind, payment_date, installment_index, installment_count, broker_name, normalized_broker, holder_name, normalized_holder, match_status, confidence, contract_id, advisor_id, advisor_share, team_lead_share, agency_share, row_fingerprint, created_at, updated_at FROM commissions`

func scanCommission(row scanner) (Commission, error) {
	var c Commission
	var instIdx, instCnt sql.NullInt64
	var broker, brokerNorm, holder, holderNorm, contract, advisor sql.NullString
	var confidence sql.NullFloat64
	var advShare, tlShare, agShare sql.NullInt64
	if err := row.Scan(&c.ID, &c.BatchID, &c.PolicyNumber, &c.NormalizedPolicy, &c.AmountCents, &c.Kind,
		&c.PaymentDate, &instIdx, &instCnt, &broker, &brokerNorm, &holder, &holderNorm,
		&c.MatchStatus, &confidence, &contract, &advisor, &advShare, &tlShare, &agShare,
		&c.RowFingerprint, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Commission{}, err
	}
	if instIdx.Valid {
		v := int(instIdx.Int64)
		c.InstallmentIndex = &v
	}
	if instCnt.Valid {
		v := int(instCnt.Int64)
		c.InstallmentCount = &v
	}
	if broker.Valid {
		c.BrokerName = &broker.String
	}
	if brokerNorm.Valid {
		c.NormalizedBroker = &brokerNorm.String
	}
	if holder.Valid {
		c.HolderName = &holder.String
	}
	if holderNorm.Valid {
		c.NormalizedHolder = &holderNorm.String
	}
	if confidence.Valid {
		c.Confidence = &confidence.Float64
	}
	if contract.Valid {
		c.ContractID = &contract.String
	}
	if advisor.Valid {
		c.AdvisorID = &advisor.String
	}
	if advShare.Valid {
		c.AdvisorShare = &advShare.Int64
	}
	if tlShare.Valid {
		c.TeamLeadShare = &tlShare.Int64
	}
	if agShare.Valid {
		c.AgencyShare = &agShare.Int64
	}
	return c, nil
}
