package repository

import (
	"context"
	"database/sql"
)

// ConsultationRepo stores raw secondary-source consultation rows.
type ConsultationRepo struct {
	db DBTX
}

func NewConsultationRepo(db DBTX) *ConsultationRepo { return &ConsultationRepo{db: db} }

func (r *ConsultationRepo) Insert(ctx context.Context, c Consultation) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO consultations(id, batch_id, policy_number, normalized_policy, advisor_name, normalized_broker,
	 advisor_id, holder_name, normalized_holder, consulted_at, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, c.ID, c.BatchID, c.PolicyNumber, c.NormalizedPolicy, c.AdvisorName, c.NormalizedBroker,
		c.AdvisorID, c.HolderName, c.NormalizedHolder, c.ConsultedAt)
	return err
}

func (r *ConsultationRepo) ListByPolicy(ctx context.Context, normalizedPolicy string) ([]Consultation, error) {
	rows, err := r.db.QueryContext(ctx, consultationCols+` WHERE normalized_policy = ? ORDER BY consulted_at DESC`, normalizedPolicy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const consultationCols = `SELECT id, batch_id, policy_number, normalized_policy, advisor_name, normalized_broker, advisor_id, holder_name, normalized_holder, consulted_at, created_at FROM consultations`

func scanConsultation(row scanner) (Consultation, error) {
	var c Consultation
	var advName, brokerNorm, advisor, holder, holderNorm sql.NullString
	var consulted sql.NullTime
	if err := row.Scan(&c.ID, &c.BatchID, &c.PolicyNumber, &c.NormalizedPolicy, &advName, &brokerNorm,
		&advisor, &holder, &holderNorm, &consulted, &c.CreatedAt); err != nil {
		return Consultation{}, err
	}
	if advName.Valid {
		c.AdvisorName = &advName.String
	}
	if brokerNorm.Valid {
		c.NormalizedBroker = &brokerNorm.String
	}
	if advisor.Valid {
		c.AdvisorID = &advisor.String
	}
	if holder.Valid {
		c.HolderName = &holder.String
	}
	if holderNorm.Valid {
		c.NormalizedHolder = &holderNorm.String
	}
	if consulted.Valid {
		c.ConsultedAt = &consulted.Time
	}
	return c, nil
}
