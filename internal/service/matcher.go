package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database"
	"github.com/provia/courtage/internal/database/repository"
)

// Matcher resolves commissions to contracts and advisors. Automatic matching
// is an ordered pipeline of set-based steps that only ever touch rows still
// unmatched, so re-runs are free and a concurrent manual assignment is never
// clobbered.
type Matcher struct {
	DB  *sql.DB
	Log *zap.Logger

	// assignHook fires inside the Assign transaction after the commission is
	// linked but before its split is written. Tests use it to prove rollback.
	assignHook func() error
}

// MatchSummary reports what one automatic run changed.
type MatchSummary struct {
	ExactMatched        int
	AltMatched          int
	ConsultationMatched int
	ContractsCreated    int
	ContractsBackfilled int
	MappingResolved     int
	SplitsComputed      int
	ContractsAdvanced   int
}

func (s MatchSummary) total() int {
	return s.ExactMatched + s.AltMatched + s.ConsultationMatched + s.MappingResolved
}

// AutoMatch runs the pipeline. An empty batchID runs account-wide; otherwise
// every step, including back-fill and status advance, is scoped to that
// batch's commissions.
func (m *Matcher) AutoMatch(ctx context.Context, batchID string) (MatchSummary, error) {
	var sum MatchSummary
	err := database.WithTx(ctx, m.DB, func(tx *sql.Tx) error {
		var err error
		if sum.ExactMatched, err = execCount(ctx, tx, stepExactPolicy, batchID, batchID); err != nil {
			return err
		}
		if sum.AltMatched, err = execCount(ctx, tx, stepAltPolicy, batchID, batchID); err != nil {
			return err
		}
		if sum.ContractsCreated, err = m.createContractsFromConsultations(ctx, tx, batchID); err != nil {
			return err
		}
		if sum.ConsultationMatched, err = execCount(ctx, tx, stepConsultation, batchID, batchID); err != nil {
			return err
		}
		if sum.ContractsBackfilled, err = execCount(ctx, tx, stepBackfillContractAdvisor, batchID, batchID); err != nil {
			return err
		}
		if _, err = execCount(ctx, tx, stepAdoptContractAdvisor, batchID, batchID); err != nil {
			return err
		}
		if sum.MappingResolved, err = execCount(ctx, tx, stepMappingAdvisor, batchID, batchID); err != nil {
			return err
		}
		if sum.SplitsComputed, err = m.computePendingSplits(ctx, tx, batchID); err != nil {
			return err
		}
		advanced, err := advanceContractStatuses(ctx, tx, batchID)
		if err != nil {
			return err
		}
		sum.ContractsAdvanced = advanced
		return nil
	})
	if err != nil {
		return MatchSummary{}, err
	}
	if m.Log != nil {
		m.Log.Info("automatic matching finished",
			zap.String("batch_id", batchID),
			zap.Int("matched", sum.total()),
			zap.Int("splits", sum.SplitsComputed),
			zap.Int("contracts_advanced", sum.ContractsAdvanced))
	}
	return sum, nil
}

// Each step filters on match_status = 'unmatched' and threads the batch
// scope explicitly; identifiers inside the candidate subqueries are bound to
// the subquery's own alias.

const stepExactPolicy = `
UPDATE commissions SET
 contract_id = (SELECT c.id FROM contracts c WHERE c.normalized_policy = commissions.normalized_policy),
 advisor_id = COALESCE(commissions.advisor_id,
   (SELECT c.advisor_id FROM contracts c WHERE c.normalized_policy = commissions.normalized_policy)),
 match_status = 'auto_matched',
 confidence = 1.0,
 updated_at = CURRENT_TIMESTAMP
WHERE match_status = 'unmatched'
  AND normalized_policy <> ''
  AND EXISTS (SELECT 1 FROM contracts c WHERE c.normalized_policy = commissions.normalized_policy)
  AND (? = '' OR batch_id = ?)`

const stepAltPolicy = `
UPDATE commissions SET
 contract_id = (SELECT c.id FROM contracts c WHERE c.normalized_alt_policy = commissions.normalized_policy LIMIT 1),
 advisor_id = COALESCE(commissions.advisor_id,
   (SELECT c.advisor_id FROM contracts c WHERE c.normalized_alt_policy = commissions.normalized_policy LIMIT 1)),
 match_status = 'auto_matched',
 confidence = 0.9,
 updated_at = CURRENT_TIMESTAMP
WHERE match_status = 'unmatched'
  AND normalized_policy <> ''
  AND EXISTS (SELECT 1 FROM contracts c WHERE c.normalized_alt_policy = commissions.normalized_policy)
  AND (? = '' OR batch_id = ?)`

const stepConsultation = `
UPDATE commissions SET
 contract_id = (SELECT c.id FROM contracts c WHERE c.normalized_policy = commissions.normalized_policy),
 advisor_id = COALESCE(commissions.advisor_id,
   (SELECT c.advisor_id FROM contracts c WHERE c.normalized_policy = commissions.normalized_policy)),
 match_status = 'auto_matched',
 confidence = 0.85,
 updated_at = CURRENT_TIMESTAMP
WHERE match_status = 'unmatched'
  AND normalized_policy <> ''
  AND EXISTS (SELECT 1 FROM consultations cons WHERE cons.normalized_policy = commissions.normalized_policy)
  AND EXISTS (SELECT 1 FROM contracts c WHERE c.normalized_policy = commissions.normalized_policy)
  AND (? = '' OR batch_id = ?)`

const stepBackfillContractAdvisor = `
UPDATE contracts SET
 advisor_id = (SELECT cons.advisor_id FROM consultations cons
   WHERE cons.normalized_policy = contracts.normalized_policy AND cons.advisor_id IS NOT NULL
   ORDER BY cons.consulted_at DESC LIMIT 1),
 updated_at = CURRENT_TIMESTAMP
WHERE advisor_id IS NULL
  AND EXISTS (SELECT 1 FROM consultations cons
    WHERE cons.normalized_policy = contracts.normalized_policy AND cons.advisor_id IS NOT NULL)
  AND (? = '' OR EXISTS (SELECT 1 FROM commissions k WHERE k.contract_id = contracts.id AND k.batch_id = ?))`

const stepAdoptContractAdvisor = `
UPDATE commissions SET
 advisor_id = (SELECT c.advisor_id FROM contracts c WHERE c.id = commissions.contract_id),
 updated_at = CURRENT_TIMESTAMP
WHERE match_status = 'auto_matched'
  AND advisor_id IS NULL
  AND contract_id IS NOT NULL
  AND (SELECT c.advisor_id FROM contracts c WHERE c.id = commissions.contract_id) IS NOT NULL
  AND (? = '' OR batch_id = ?)`

const stepMappingAdvisor = `
UPDATE commissions SET
 advisor_id = (SELECT bm.advisor_id FROM broker_mappings bm WHERE bm.normalized_broker = commissions.normalized_broker),
 updated_at = CURRENT_TIMESTAMP
WHERE match_status = 'auto_matched'
  AND advisor_id IS NULL
  AND normalized_broker IS NOT NULL AND normalized_broker <> ''
  AND EXISTS (SELECT 1 FROM broker_mappings bm WHERE bm.normalized_broker = commissions.normalized_broker)
  AND (? = '' OR batch_id = ?)`

// Only the status-advance step may set commission_received; contract upserts
// go through the merge policy, which preserves terminal statuses.
const stepAdvanceReceived = `
UPDATE contracts SET status = 'commission_received', updated_at = CURRENT_TIMESTAMP
WHERE status NOT IN ('commission_received', 'chargeback')
  AND EXISTS (SELECT 1 FROM commissions k
    WHERE k.contract_id = contracts.id AND k.amount > 0
      AND k.match_status IN ('auto_matched', 'manual_matched')
      AND (? = '' OR k.batch_id = ?))`

const stepAdvanceChargeback = `
UPDATE contracts SET status = 'chargeback', updated_at = CURRENT_TIMESTAMP
WHERE status <> 'chargeback'
  AND EXISTS (SELECT 1 FROM commissions k
    WHERE k.contract_id = contracts.id AND k.amount < 0
      AND k.match_status IN ('auto_matched', 'manual_matched')
      AND (? = '' OR k.batch_id = ?))`

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func advanceContractStatuses(ctx context.Context, tx *sql.Tx, batchID string) (int, error) {
	received, err := execCount(ctx, tx, stepAdvanceReceived, batchID, batchID)
	if err != nil {
		return 0, err
	}
	charged, err := execCount(ctx, tx, stepAdvanceChargeback, batchID, batchID)
	if err != nil {
		return 0, err
	}
	return received + charged, nil
}

// createContractsFromConsultations materializes contracts for consultations
// whose policy number matches an unmatched commission but has no contract
// yet, so the consultation step has something to link against.
func (m *Matcher) createContractsFromConsultations(ctx context.Context, tx *sql.Tx, batchID string) (int, error) {
	rows, err := tx.QueryContext(ctx, `
	SELECT cons.normalized_policy, cons.policy_number, cons.holder_name, cons.normalized_holder,
	       cons.advisor_id, cons.consulted_at
	FROM consultations cons
	JOIN commissions k ON k.normalized_policy = cons.normalized_policy
	WHERE k.match_status = 'unmatched'
	  AND (? = '' OR k.batch_id = ?)
	  AND NOT EXISTS (SELECT 1 FROM contracts c WHERE c.normalized_policy = cons.normalized_policy)
	ORDER BY cons.consulted_at DESC`, batchID, batchID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type candidate struct {
		policy     string
		holder     sql.NullString
		holderNorm sql.NullString
		advisor    sql.NullString
	}
	seen := map[string]candidate{}
	var order []string
	for rows.Next() {
		var c candidate
		var key string
		var consulted sql.NullTime
		if err := rows.Scan(&key, &c.policy, &c.holder, &c.holderNorm, &c.advisor, &consulted); err != nil {
			return 0, err
		}
		if _, ok := seen[key]; ok {
			continue // newest consultation wins
		}
		seen[key] = c
		order = append(order, key)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	repo := repository.NewContractRepo(tx)
	for _, key := range order {
		c := seen[key]
		contract := repository.Contract{
			ID:               deterministicID("contract", key),
			PolicyNumber:     c.policy,
			NormalizedPolicy: key,
			Status:           repository.ContractOpen,
			Source:           repository.SourceConsultation,
		}
		if c.holder.Valid {
			contract.HolderName = &c.holder.String
		}
		if c.holderNorm.Valid {
			contract.NormalizedHolder = &c.holderNorm.String
		}
		if c.advisor.Valid {
			contract.AdvisorID = &c.advisor.String
		}
		if err := repo.Insert(ctx, contract); err != nil {
			return 0, err
		}
	}
	return len(order), nil
}

// computePendingSplits covers every commission matched in this run: a row
// just matched always has NULL shares, and a previously matched row without
// an advisor gets its split as soon as one is resolved.
func (m *Matcher) computePendingSplits(ctx context.Context, tx *sql.Tx, batchID string) (int, error) {
	pending, err := repository.NewCommissionRepo(tx).List(ctx, repository.CommissionFilters{
		MatchStatus: repository.MatchAuto,
		BatchID:     batchID,
	})
	if err != nil {
		return 0, err
	}
	cache, err := newAdvisorCache(ctx, tx)
	if err != nil {
		return 0, err
	}
	repo := repository.NewCommissionRepo(tx)
	n := 0
	for _, c := range pending {
		if c.AdvisorID == nil || c.AdvisorShare != nil {
			continue
		}
		advisor, lead, ok := cache.resolve(*c.AdvisorID)
		if !ok {
			continue
		}
		split, err := ComputeSplit(c.AmountCents, advisor, lead)
		if err != nil {
			return 0, err
		}
		if err := repo.UpdateSplit(ctx, c.ID, split.AdvisorShare, split.TeamLeadShare, split.AgencyShare); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Assign resolves one commission manually. The whole operation is a single
// transaction; any failure leaves the commission exactly as it was.
func (m *Matcher) Assign(ctx context.Context, commissionID, contractID, advisorID string) error {
	commissions := repository.NewCommissionRepo(m.DB)
	comm, err := commissions.Get(ctx, commissionID)
	if err != nil {
		return err
	}
	if comm == nil {
		return apperr.New(apperr.NotFound, "commission %s not found", commissionID)
	}
	contract, err := repository.NewContractRepo(m.DB).Get(ctx, contractID)
	if err != nil {
		return err
	}
	if contract == nil {
		return apperr.New(apperr.NotFound, "contract %s not found", contractID)
	}
	advisors := repository.NewAdvisorRepo(m.DB)
	advisor, err := advisors.Get(ctx, advisorID)
	if err != nil {
		return err
	}
	if advisor == nil {
		return apperr.New(apperr.NotFound, "advisor %s not found", advisorID)
	}
	var lead *repository.Advisor
	if advisor.TeamLeadID != nil {
		if lead, err = advisors.Get(ctx, *advisor.TeamLeadID); err != nil {
			return err
		}
	}

	err = database.WithTx(ctx, m.DB, func(tx *sql.Tx) error {
		if err := linkCommission(ctx, tx, comm.ID, contractID, advisorID); err != nil {
			return err
		}
		if m.assignHook != nil {
			if err := m.assignHook(); err != nil {
				return err
			}
		}
		split, err := ComputeSplit(comm.AmountCents, *advisor, lead)
		if err != nil {
			return err
		}
		repo := repository.NewCommissionRepo(tx)
		if err := repo.UpdateSplit(ctx, comm.ID, split.AdvisorShare, split.TeamLeadShare, split.AgencyShare); err != nil {
			return err
		}

		// siblings: same source policy number, still unmatched
		siblings, err := repo.List(ctx, repository.CommissionFilters{MatchStatus: repository.MatchUnmatched})
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if sib.NormalizedPolicy != comm.NormalizedPolicy || sib.ID == comm.ID {
				continue
			}
			if err := linkCommission(ctx, tx, sib.ID, contractID, advisorID); err != nil {
				return err
			}
			sibSplit, err := ComputeSplit(sib.AmountCents, *advisor, lead)
			if err != nil {
				return err
			}
			if err := repo.UpdateSplit(ctx, sib.ID, sibSplit.AdvisorShare, sibSplit.TeamLeadShare, sibSplit.AgencyShare); err != nil {
				return err
			}
		}
		_, err = advanceContractStatuses(ctx, tx, "")
		return err
	})
	if err != nil {
		return err
	}
	if m.Log != nil {
		m.Log.Info("commission assigned",
			zap.String("commission_id", commissionID),
			zap.String("contract_id", contractID),
			zap.String("advisor_id", advisorID))
	}
	return nil
}

func linkCommission(ctx context.Context, tx *sql.Tx, id, contractID, advisorID string) error {
	_, err := tx.ExecContext(ctx, `
	UPDATE commissions SET contract_id = ?, advisor_id = ?, match_status = ?, confidence = NULL,
	 updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, contractID, advisorID, repository.MatchManual, id)
	return err
}

// RecomputeForAdvisor rewrites the splits of every matched commission of one
// advisor, as its own transaction. Used after rate or override changes;
// never runs unscoped.
func (m *Matcher) RecomputeForAdvisor(ctx context.Context, advisorID string) (int, error) {
	return m.recomputeScoped(ctx, repository.CommissionFilters{AdvisorID: advisorID})
}

// RecomputeForContract rewrites the splits of one contract's commissions.
func (m *Matcher) RecomputeForContract(ctx context.Context, contractID string) (int, error) {
	return m.recomputeScoped(ctx, repository.CommissionFilters{ContractID: contractID})
}

func (m *Matcher) recomputeScoped(ctx context.Context, f repository.CommissionFilters) (int, error) {
	n := 0
	err := database.WithTx(ctx, m.DB, func(tx *sql.Tx) error {
		repo := repository.NewCommissionRepo(tx)
		rows, err := repo.List(ctx, f)
		if err != nil {
			return err
		}
		cache, err := newAdvisorCache(ctx, tx)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.AdvisorID == nil || (c.MatchStatus != repository.MatchAuto && c.MatchStatus != repository.MatchManual) {
				continue
			}
			advisor, lead, ok := cache.resolve(*c.AdvisorID)
			if !ok {
				continue
			}
			split, err := ComputeSplit(c.AmountCents, advisor, lead)
			if err != nil {
				return err
			}
			if err := repo.UpdateSplit(ctx, c.ID, split.AdvisorShare, split.TeamLeadShare, split.AgencyShare); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

type advisorCache struct {
	byID map[string]repository.Advisor
}

func newAdvisorCache(ctx context.Context, db repository.DBTX) (*advisorCache, error) {
	all, err := repository.NewAdvisorRepo(db).List(ctx, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]repository.Advisor, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}
	return &advisorCache{byID: byID}, nil
}

func (c *advisorCache) resolve(advisorID string) (repository.Advisor, *repository.Advisor, bool) {
	advisor, ok := c.byID[advisorID]
	if !ok {
		return repository.Advisor{}, nil, false
	}
	if advisor.TeamLeadID != nil {
		if lead, ok := c.byID[*advisor.TeamLeadID]; ok {
			return advisor, &lead, true
		}
	}
	return advisor, nil, true
}
