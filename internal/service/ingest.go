package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database"
	"github.com/provia/courtage/internal/database/repository"
	"github.com/provia/courtage/internal/normalize"
)

// Ingester persists raw rows from either source as one import batch. The
// parsing layer upstream delivers already-tokenized rows; everything here is
// normalization, dedup and persistence.
type Ingester struct {
	DB  *sql.DB
	Log *zap.Logger
}

// CommissionRow is one raw commission-payment line.
type CommissionRow struct {
	PolicyNumber     string    `json:"policy_number"`
	AmountCents      int64     `json:"amount_cents"`
	Kind             string    `json:"kind"`
	PaymentDate      time.Time `json:"payment_date"`
	InstallmentIndex *int      `json:"installment_index,omitempty"`
	InstallmentCount *int      `json:"installment_count,omitempty"`
	BrokerName       string    `json:"broker_name,omitempty"`
	HolderName       string    `json:"holder_name,omitempty"`
}

// ContractRow is one raw contract line from the contract source.
type ContractRow struct {
	PolicyNumber    string `json:"policy_number"`
	AltPolicyNumber string `json:"alt_policy_number,omitempty"`
	HolderName      string `json:"holder_name,omitempty"`
	AdvisorID       string `json:"advisor_id,omitempty"`
	Status          string `json:"status,omitempty"`
}

// ConsultationRow is one raw consultation line from the secondary source.
type ConsultationRow struct {
	PolicyNumber string     `json:"policy_number"`
	AdvisorName  string     `json:"advisor_name,omitempty"`
	HolderName   string     `json:"holder_name,omitempty"`
	ConsultedAt  *time.Time `json:"consulted_at,omitempty"`
}

// IngestInput carries one file's rows plus its content fingerprint.
type IngestInput struct {
	SourceType    string
	Fingerprint   string
	Force         bool
	Commissions   []CommissionRow
	Contracts     []ContractRow
	Consultations []ConsultationRow
}

// BatchResult reports what one ingest run did. For a duplicate fingerprint
// it carries the prior batch's counters unchanged with Duplicate set.
type BatchResult struct {
	BatchID      string
	Duplicate    bool
	RowsSeen     int
	RowsImported int
	RowsSkipped  int
	RowsErrored  int
	RowErrors    []string
}

func (s *Ingester) Ingest(ctx context.Context, in IngestInput) (BatchResult, error) {
	switch in.SourceType {
	case repository.SourceCommissionList, repository.SourceContractList, repository.SourceConsultation:
	default:
		return BatchResult{}, apperr.New(apperr.Validation, "unknown source type %q", in.SourceType)
	}
	if strings.TrimSpace(in.Fingerprint) == "" {
		return BatchResult{}, apperr.New(apperr.Validation, "content fingerprint required")
	}

	prior, err := repository.NewBatchRepo(s.DB).GetByFingerprint(ctx, in.SourceType, in.Fingerprint)
	if err != nil {
		return BatchResult{}, err
	}
	if prior != nil && !in.Force {
		return BatchResult{
			BatchID:   prior.ID,
			Duplicate: true,
			RowsSeen:  prior.RowsSeen, RowsImported: prior.RowsImported,
			RowsSkipped: prior.RowsSkipped, RowsErrored: prior.RowsErrored,
		}, nil
	}

	batch := repository.ImportBatch{
		ID:          uuid.NewString(),
		SourceType:  in.SourceType,
		Fingerprint: in.Fingerprint,
	}
	res := BatchResult{BatchID: batch.ID}

	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		batches := repository.NewBatchRepo(tx)
		if err := batches.Insert(ctx, batch); err != nil {
			return err
		}
		switch in.SourceType {
		case repository.SourceCommissionList:
			s.ingestCommissions(ctx, tx, batch.ID, in.Commissions, &res)
		case repository.SourceContractList:
			s.ingestContracts(ctx, tx, in.Contracts, &res)
		case repository.SourceConsultation:
			s.ingestConsultations(ctx, tx, batch.ID, in.Consultations, &res)
		}
		batch.RowsSeen = res.RowsSeen
		batch.RowsImported = res.RowsImported
		batch.RowsSkipped = res.RowsSkipped
		batch.RowsErrored = res.RowsErrored
		return batches.UpdateCounters(ctx, batch)
	})
	if err != nil {
		return BatchResult{}, err
	}

	if s.Log != nil {
		s.Log.Info("batch ingested",
			zap.String("batch_id", batch.ID),
			zap.String("source_type", in.SourceType),
			zap.Int("imported", res.RowsImported),
			zap.Int("skipped", res.RowsSkipped),
			zap.Int("errored", res.RowsErrored))
	}
	return res, nil
}

func (s *Ingester) ingestCommissions(ctx context.Context, tx *sql.Tx, batchID string, rows []CommissionRow, res *BatchResult) {
	repo := repository.NewCommissionRepo(tx)
	for i, row := range rows {
		res.RowsSeen++
		key := normalize.PolicyNumber(row.PolicyNumber)
		if key == "" || row.PaymentDate.IsZero() || row.AmountCents == 0 {
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: missing policy number, date or amount", i+1))
			continue
		}
		c := repository.Commission{
			ID:               uuid.NewString(),
			BatchID:          batchID,
			PolicyNumber:     strings.TrimSpace(row.PolicyNumber),
			NormalizedPolicy: key,
			AmountCents:      row.AmountCents,
			Kind:             commissionKind(row.Kind, row.AmountCents),
			PaymentDate:      row.PaymentDate.UTC(),
			InstallmentIndex: row.InstallmentIndex,
			InstallmentCount: row.InstallmentCount,
			MatchStatus:      repository.MatchUnmatched,
		}
		if b := strings.TrimSpace(row.BrokerName); b != "" {
			nb := normalize.BrokerName(b)
			c.BrokerName = &b
			c.NormalizedBroker = &nb
		}
		if h := strings.TrimSpace(row.HolderName); h != "" {
			nh := normalize.AccountHolder(h)
			c.HolderName = &h
			c.NormalizedHolder = &nh
		}
		c.RowFingerprint = rowFingerprint(
			key,
			strconv.FormatInt(c.AmountCents, 10),
			c.Kind,
			c.PaymentDate.Format(time.DateOnly),
			intOrEmpty(c.InstallmentIndex),
			derefOrEmpty(c.NormalizedBroker),
		)
		if err := repo.Insert(ctx, c); err != nil {
			// skip duplicates on unique constraint
			if strings.Contains(err.Error(), "UNIQUE") {
				res.RowsSkipped++
				continue
			}
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		res.RowsImported++
	}
}

func (s *Ingester) ingestContracts(ctx context.Context, tx *sql.Tx, rows []ContractRow, res *BatchResult) {
	repo := repository.NewContractRepo(tx)
	for i, row := range rows {
		res.RowsSeen++
		key := normalize.PolicyNumber(row.PolicyNumber)
		if key == "" {
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: missing policy number", i+1))
			continue
		}
		incoming := contractFromRow(row, key)
		existing, err := repo.GetByNormalizedPolicy(ctx, key)
		if err != nil {
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if existing == nil {
			incoming.ID = deterministicID("contract", key)
			incoming.Source = repository.SourceContractList
			err = repo.Insert(ctx, incoming)
		} else {
			err = repo.Update(ctx, mergeContract(*existing, incoming))
		}
		if err != nil {
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		res.RowsImported++
	}
}

func (s *Ingester) ingestConsultations(ctx context.Context, tx *sql.Tx, batchID string, rows []ConsultationRow, res *BatchResult) {
	repo := repository.NewConsultationRepo(tx)
	mappings := repository.NewMappingRepo(tx)
	for i, row := range rows {
		res.RowsSeen++
		key := normalize.PolicyNumber(row.PolicyNumber)
		if key == "" {
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: missing policy number", i+1))
			continue
		}
		c := repository.Consultation{
			ID:               uuid.NewString(),
			BatchID:          batchID,
			PolicyNumber:     strings.TrimSpace(row.PolicyNumber),
			NormalizedPolicy: key,
			ConsultedAt:      row.ConsultedAt,
		}
		if a := strings.TrimSpace(row.AdvisorName); a != "" {
			nb := normalize.BrokerName(a)
			c.AdvisorName = &a
			c.NormalizedBroker = &nb
			if m, err := mappings.GetByNormalizedBroker(ctx, nb); err == nil && m != nil {
				c.AdvisorID = &m.AdvisorID
			}
		}
		if h := strings.TrimSpace(row.HolderName); h != "" {
			nh := normalize.AccountHolder(h)
			c.HolderName = &h
			c.NormalizedHolder = &nh
		}
		if err := repo.Insert(ctx, c); err != nil {
			res.RowsErrored++
			res.RowErrors = append(res.RowErrors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		res.RowsImported++
	}
}

func contractFromRow(row ContractRow, key string) repository.Contract {
	c := repository.Contract{
		PolicyNumber:     strings.TrimSpace(row.PolicyNumber),
		NormalizedPolicy: key,
		Status:           contractStatus(row.Status),
	}
	if alt := strings.TrimSpace(row.AltPolicyNumber); alt != "" {
		nk := normalize.PolicyNumber(alt)
		c.AltPolicyNumber = &alt
		c.NormalizedAltPolicy = &nk
	}
	if h := strings.TrimSpace(row.HolderName); h != "" {
		nh := normalize.AccountHolder(h)
		c.HolderName = &h
		c.NormalizedHolder = &nh
	}
	if a := strings.TrimSpace(row.AdvisorID); a != "" {
		c.AdvisorID = &a
	}
	return c
}

func commissionKind(kind string, amountCents int64) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case repository.KindPayment, repository.KindRenewal, repository.KindChargeback, repository.KindOther:
		return strings.ToLower(strings.TrimSpace(kind))
	case "":
		if amountCents < 0 {
			return repository.KindChargeback
		}
		return repository.KindPayment
	default:
		return repository.KindOther
	}
}

func contractStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case repository.ContractProposal, repository.ContractOpen, repository.ContractConcluded,
		repository.ContractCommissionReceived, repository.ContractCommissionMissing,
		repository.ContractCancelled, repository.ContractChargeback:
		return strings.ToLower(strings.TrimSpace(status))
	default:
		return repository.ContractOpen
	}
}

func rowFingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", sum[:])
}

// deterministicID derives a stable id from a normalized business key so
// repeated upserts of the same entity agree on identity.
func deterministicID(kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+key)).String()
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
