package service

import (
	"context"
	"database/sql"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database/repository"
)

// Clearance serves the manual worklist: which commissions still need a human,
// and ranked candidates for resolving them. All reads; the only writes are
// the ignore flag.
type Clearance struct {
	DB *sql.DB
}

// Clearance buckets, from least to most resolved.
const (
	BucketNoContract    = "no_contract"
	BucketUnknownBroker = "unknown_broker"
	BucketNoRateModel   = "no_rate_model"
	BucketNoSplit       = "no_split"
)

type ClearanceCounts struct {
	NoContract    int `json:"no_contract"`
	UnknownBroker int `json:"unknown_broker"`
	NoRateModel   int `json:"no_rate_model"`
	NoSplit       int `json:"no_split"`
}

// Counts buckets every non-ignored commission by what blocks its payout.
// Buckets are disjoint: a row appears in the first one that applies.
func (s *Clearance) Counts(ctx context.Context) (ClearanceCounts, error) {
	var c ClearanceCounts
	err := s.DB.QueryRowContext(ctx, `
	SELECT
	 COALESCE(SUM(CASE WHEN k.contract_id IS NULL THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN k.contract_id IS NOT NULL AND k.advisor_id IS NULL THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN k.advisor_id IS NOT NULL AND COALESCE(a.commission_rate, 0) <= 0 THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN k.advisor_id IS NOT NULL AND COALESCE(a.commission_rate, 0) > 0
	                    AND k.advisor_share IS NULL THEN 1 ELSE 0 END), 0)
	FROM commissions k
	LEFT JOIN advisors a ON a.id = k.advisor_id
	WHERE k.match_status != 'ignored'`).Scan(&c.NoContract, &c.UnknownBroker, &c.NoRateModel, &c.NoSplit)
	return c, err
}

var bucketFilters = map[string]string{
	BucketNoContract:    "k.contract_id IS NULL",
	BucketUnknownBroker: "k.contract_id IS NOT NULL AND k.advisor_id IS NULL",
	BucketNoRateModel:   "k.advisor_id IS NOT NULL AND COALESCE(a.commission_rate, 0) <= 0",
	BucketNoSplit:       "k.advisor_id IS NOT NULL AND COALESCE(a.commission_rate, 0) > 0 AND k.advisor_share IS NULL",
}

// Pending lists the commissions in one bucket, oldest payment first.
func (s *Clearance) Pending(ctx context.Context, bucket string, limit int) ([]repository.Commission, error) {
	filter, ok := bucketFilters[bucket]
	if !ok {
		return nil, apperr.New(apperr.Validation, "unknown clearance bucket %q", bucket)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
	SELECT k.id FROM commissions k
	LEFT JOIN advisors a ON a.id = k.advisor_id
	WHERE k.match_status != 'ignored' AND `+filter+`
	ORDER BY k.payment_date ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	repo := repository.NewCommissionRepo(s.DB)
	out := make([]repository.Commission, 0, len(ids))
	for _, id := range ids {
		c, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// Ignore takes an unmatched commission out of every clearance bucket.
func (s *Clearance) Ignore(ctx context.Context, commissionID string) error {
	return s.setMatchStatus(ctx, commissionID, repository.MatchUnmatched, repository.MatchIgnored)
}

// Reopen puts an ignored commission back into the worklist.
func (s *Clearance) Reopen(ctx context.Context, commissionID string) error {
	return s.setMatchStatus(ctx, commissionID, repository.MatchIgnored, repository.MatchUnmatched)
}

func (s *Clearance) setMatchStatus(ctx context.Context, commissionID, from, to string) error {
	comm, err := repository.NewCommissionRepo(s.DB).Get(ctx, commissionID)
	if err != nil {
		return err
	}
	if comm == nil {
		return apperr.New(apperr.NotFound, "commission %s not found", commissionID)
	}
	if comm.MatchStatus != from {
		return apperr.New(apperr.Conflict, "commission %s is %s, expected %s", commissionID, comm.MatchStatus, from)
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE commissions SET match_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		to, commissionID)
	return err
}

// Rule scores for suggestion ranking.
const (
	scoreExactPolicy = 100
	scoreAltPolicy   = 90
	scoreExactHolder = 70
	scoreContainment = 40
)

// ContractSuggestion ranks a contract as a candidate for a commission.
type ContractSuggestion struct {
	Contract repository.Contract `json:"contract"`
	Score    int                 `json:"score"`
}

// CommissionSuggestion ranks a commission as a candidate for a contract.
type CommissionSuggestion struct {
	Commission repository.Commission `json:"commission"`
	Score      int                   `json:"score"`
}

// SuggestContracts ranks contracts for an unresolved commission. Rules score
// 100 for an exact normalized-policy hit, 90 for the alternate policy, 70
// for an exact holder key and 40 for holder containment either way; equal
// scores are ordered by holder edit distance.
func (s *Clearance) SuggestContracts(ctx context.Context, commissionID string, limit int) ([]ContractSuggestion, error) {
	comm, err := repository.NewCommissionRepo(s.DB).Get(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if comm == nil {
		return nil, apperr.New(apperr.NotFound, "commission %s not found", commissionID)
	}
	holder := derefOrEmpty(comm.NormalizedHolder)
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT id, score FROM (
	 SELECT c.id AS id,
	  CASE
	   WHEN c.normalized_policy = ?1 THEN 100
	   WHEN c.normalized_alt_policy = ?1 THEN 90
	   WHEN ?2 <> '' AND c.normalized_holder = ?2 THEN 70
	   WHEN ?2 <> '' AND COALESCE(c.normalized_holder, '') <> ''
	    AND (instr(c.normalized_holder, ?2) > 0 OR instr(?2, c.normalized_holder) > 0) THEN 40
	   ELSE 0
	  END AS score
	 FROM contracts c
	) WHERE score > 0 ORDER BY score DESC LIMIT ?3`, comm.NormalizedPolicy, holder, limit)
	if err != nil {
		return nil, err
	}
	scored, err := collectScores(rows)
	if err != nil {
		return nil, err
	}

	repo := repository.NewContractRepo(s.DB)
	out := make([]ContractSuggestion, 0, len(scored))
	for _, sc := range scored {
		contract, err := repo.Get(ctx, sc.id)
		if err != nil {
			return nil, err
		}
		if contract != nil {
			out = append(out, ContractSuggestion{Contract: *contract, Score: sc.score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return holderDistance(holder, out[i].Contract.NormalizedHolder) <
			holderDistance(holder, out[j].Contract.NormalizedHolder)
	})
	return out, nil
}

// SuggestCommissions is the reverse direction: unmatched commissions that
// plausibly belong to a contract.
func (s *Clearance) SuggestCommissions(ctx context.Context, contractID string, limit int) ([]CommissionSuggestion, error) {
	contract, err := repository.NewContractRepo(s.DB).Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, apperr.New(apperr.NotFound, "contract %s not found", contractID)
	}
	holder := derefOrEmpty(contract.NormalizedHolder)
	altPolicy := derefOrEmpty(contract.NormalizedAltPolicy)
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT id, score FROM (
	 SELECT k.id AS id,
	  CASE
	   WHEN k.normalized_policy = ?1 THEN 100
	   WHEN ?2 <> '' AND k.normalized_policy = ?2 THEN 90
	   WHEN ?3 <> '' AND k.normalized_holder = ?3 THEN 70
	   WHEN ?3 <> '' AND COALESCE(k.normalized_holder, '') <> ''
	    AND (instr(k.normalized_holder, ?3) > 0 OR instr(?3, k.normalized_holder) > 0) THEN 40
	   ELSE 0
	  END AS score
	 FROM commissions k
	 WHERE k.match_status = 'unmatched'
	) WHERE score > 0 ORDER BY score DESC LIMIT ?4`,
		contract.NormalizedPolicy, altPolicy, holder, limit)
	if err != nil {
		return nil, err
	}
	scored, err := collectScores(rows)
	if err != nil {
		return nil, err
	}

	repo := repository.NewCommissionRepo(s.DB)
	out := make([]CommissionSuggestion, 0, len(scored))
	for _, sc := range scored {
		comm, err := repo.Get(ctx, sc.id)
		if err != nil {
			return nil, err
		}
		if comm != nil {
			out = append(out, CommissionSuggestion{Commission: *comm, Score: sc.score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return holderDistance(holder, out[i].Commission.NormalizedHolder) <
			holderDistance(holder, out[j].Commission.NormalizedHolder)
	})
	return out, nil
}

type scoredID struct {
	id    string
	score int
}

func collectScores(rows *sql.Rows) ([]scoredID, error) {
	defer rows.Close()
	var out []scoredID
	for rows.Next() {
		var s scoredID
		if err := rows.Scan(&s.id, &s.score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func holderDistance(base string, candidate *string) int {
	if base == "" || candidate == nil {
		// unknown holders sort last within their score band
		return 1 << 20
	}
	return levenshtein.ComputeDistance(base, *candidate)
}
