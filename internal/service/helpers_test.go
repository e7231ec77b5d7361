package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/provia/courtage/internal/database"
	"github.com/provia/courtage/internal/database/repository"
	"github.com/provia/courtage/internal/normalize"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func seedBatch(t *testing.T, db *sql.DB, sourceType string) string {
	t.Helper()
	b := repository.ImportBatch{
		ID:          uuid.NewString(),
		SourceType:  sourceType,
		Fingerprint: uuid.NewString(),
	}
	require.NoError(t, repository.NewBatchRepo(db).Insert(context.Background(), b))
	return b.ID
}

func seedAdvisor(t *testing.T, db *sql.DB, a repository.Advisor) repository.Advisor {
	t.Helper()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = repository.RoleAdvisor
	}
	a.Active = true
	require.NoError(t, repository.NewAdvisorRepo(db).Insert(context.Background(), a))
	return a
}

func seedContract(t *testing.T, db *sql.DB, c repository.Contract) repository.Contract {
	t.Helper()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.NormalizedPolicy == "" {
		c.NormalizedPolicy = normalize.PolicyNumber(c.PolicyNumber)
	}
	if c.Status == "" {
		c.Status = repository.ContractOpen
	}
	if c.Source == "" {
		c.Source = repository.SourceContractList
	}
	require.NoError(t, repository.NewContractRepo(db).Insert(context.Background(), c))
	return c
}

func seedCommission(t *testing.T, db *sql.DB, c repository.Commission) repository.Commission {
	t.Helper()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.BatchID == "" {
		c.BatchID = seedBatch(t, db, repository.SourceCommissionList)
	}
	if c.NormalizedPolicy == "" {
		c.NormalizedPolicy = normalize.PolicyNumber(c.PolicyNumber)
	}
	if c.BrokerName != nil && c.NormalizedBroker == nil {
		nb := normalize.BrokerName(*c.BrokerName)
		c.NormalizedBroker = &nb
	}
	if c.HolderName != nil && c.NormalizedHolder == nil {
		nh := normalize.AccountHolder(*c.HolderName)
		c.NormalizedHolder = &nh
	}
	if c.Kind == "" {
		if c.AmountCents < 0 {
			c.Kind = repository.KindChargeback
		} else {
			c.Kind = repository.KindPayment
		}
	}
	if c.PaymentDate.IsZero() {
		c.PaymentDate = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	}
	if c.MatchStatus == "" {
		c.MatchStatus = repository.MatchUnmatched
	}
	if c.RowFingerprint == "" {
		c.RowFingerprint = c.ID
	}
	require.NoError(t, repository.NewCommissionRepo(db).Insert(context.Background(), c))
	return c
}

func seedConsultation(t *testing.T, db *sql.DB, c repository.Consultation) repository.Consultation {
	t.Helper()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.BatchID == "" {
		c.BatchID = seedBatch(t, db, repository.SourceConsultation)
	}
	if c.NormalizedPolicy == "" {
		c.NormalizedPolicy = normalize.PolicyNumber(c.PolicyNumber)
	}
	require.NoError(t, repository.NewConsultationRepo(db).Insert(context.Background(), c))
	return c
}

func seedMapping(t *testing.T, db *sql.DB, brokerName, advisorID string) repository.BrokerMapping {
	t.Helper()
	m := repository.BrokerMapping{
		ID:               uuid.NewString(),
		BrokerName:       brokerName,
		NormalizedBroker: normalize.BrokerName(brokerName),
		AdvisorID:        advisorID,
	}
	require.NoError(t, repository.NewMappingRepo(db).Upsert(context.Background(), m))
	return m
}

func getCommission(t *testing.T, db *sql.DB, id string) repository.Commission {
	t.Helper()
	c, err := repository.NewCommissionRepo(db).Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return *c
}

func floatPtr(f float64) *float64 { return &f }

func getContract(t *testing.T, db *sql.DB, id string) repository.Contract {
	t.Helper()
	c, err := repository.NewContractRepo(db).Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return *c
}
