package repository

import (
	"context"
	"database/sql"
)

// MappingRepo stores broker-name to advisor mappings.
type MappingRepo struct {
	db DBTX
}

func NewMappingRepo(db DBTX) *MappingRepo { return &MappingRepo{db: db} }

func (r *MappingRepo) Upsert(ctx context.Context, m BrokerMapping) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO broker_mappings(id, broker_name, normalized_broker, advisor_id, created_at)
	VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(normalized_broker) DO UPDATE SET
	 broker_name = excluded.broker_name,
	 advisor_id = excluded.advisor_id;
	`, m.ID, m.BrokerName, m.NormalizedBroker, m.AdvisorID)
	return err
}

// Delete removes a mapping. Already-resolved commissions keep their advisor;
// deletion has no retroactive effect.
func (r *MappingRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM broker_mappings WHERE id = ?`, id)
	return err
}

func (r *MappingRepo) Get(ctx context.Context, id string) (*BrokerMapping, error) {
	row := r.db.QueryRowContext(ctx, mappingCols+` WHERE id = ?`, id)
	return scanMappingPtr(row)
}

func (r *MappingRepo) GetByNormalizedBroker(ctx context.Context, key string) (*BrokerMapping, error) {
	row := r.db.QueryRowContext(ctx, mappingCols+` WHERE normalized_broker = ?`, key)
	return scanMappingPtr(row)
}

func (r *MappingRepo) List(ctx context.Context) ([]BrokerMapping, error) {
	rows, err := r.db.QueryContext(ctx, mappingCols+` ORDER BY broker_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BrokerMapping
	for rows.Next() {
		var m BrokerMapping
		if err := rows.Scan(&m.ID, &m.BrokerName, &m.NormalizedBroker, &m.AdvisorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const mappingCols = `SELECT id, broker_name, normalized_broker, advisor_id, created_at FROM broker_mappings`

func scanMappingPtr(row *sql.Row) (*BrokerMapping, error) {
	var m BrokerMapping
	if err := row.Scan(&m.ID, &m.BrokerName, &m.NormalizedBroker, &m.AdvisorID, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
