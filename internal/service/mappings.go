package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database/repository"
	"github.com/provia/courtage/internal/normalize"
)

// Mappings manages the broker-name to advisor table. A new mapping only
// affects future matching runs; deleting one never touches commissions that
// were resolved through it.
type Mappings struct {
	DB *sql.DB
}

func (s *Mappings) Create(ctx context.Context, brokerName, advisorID string) (*repository.BrokerMapping, error) {
	name := strings.TrimSpace(brokerName)
	if name == "" {
		return nil, apperr.New(apperr.Validation, "broker name required")
	}
	advisor, err := repository.NewAdvisorRepo(s.DB).Get(ctx, advisorID)
	if err != nil {
		return nil, err
	}
	if advisor == nil {
		return nil, apperr.New(apperr.NotFound, "advisor %s not found", advisorID)
	}
	m := repository.BrokerMapping{
		ID:               uuid.NewString(),
		BrokerName:       name,
		NormalizedBroker: normalize.BrokerName(name),
		AdvisorID:        advisorID,
	}
	if err := repository.NewMappingRepo(s.DB).Upsert(ctx, m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Mappings) Delete(ctx context.Context, id string) error {
	repo := repository.NewMappingRepo(s.DB)
	existing, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.New(apperr.NotFound, "mapping %s not found", id)
	}
	return repo.Delete(ctx, id)
}

func (s *Mappings) List(ctx context.Context) ([]repository.BrokerMapping, error) {
	return repository.NewMappingRepo(s.DB).List(ctx)
}
