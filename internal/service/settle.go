package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database"
	"github.com/provia/courtage/internal/database/repository"
)

// Settler builds and maintains monthly per-advisor settlement statements.
type Settler struct {
	DB  *sql.DB
	Log *zap.Logger
}

// statementTransitions is the only authority on status changes. A reviewed
// statement may be sent back to computed; approved and paid never go back.
var statementTransitions = map[string][]string{
	repository.SettlementComputed: {repository.SettlementReviewed},
	repository.SettlementReviewed: {repository.SettlementApproved, repository.SettlementComputed},
	repository.SettlementApproved: {repository.SettlementPaid},
	repository.SettlementPaid:     {},
}

const monthLayout = "2006-01"

// Generate recomputes every advisor's statement for one month from the
// matched commissions in that payment window. Statements still in computed
// or reviewed are overwritten in place and reset to computed; an approved or
// paid statement is immutable, so regeneration writes the next revision
// beside it. Advisors with no activity in the month get no statement.
func (s *Settler) Generate(ctx context.Context, month string) ([]repository.SettlementStatement, error) {
	from, err := time.Parse(monthLayout, month)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "month must be YYYY-MM, got %q", month)
	}
	to := from.AddDate(0, 1, 0)

	var out []repository.SettlementStatement
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		totals, err := aggregateMonth(ctx, tx, from, to)
		if err != nil {
			return err
		}
		overrides, err := aggregateOverrides(ctx, tx, from, to)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(totals)+len(overrides))
		for id := range totals {
			ids = append(ids, id)
		}
		for id := range overrides {
			if _, ok := totals[id]; !ok {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)

		repo := repository.NewSettlementRepo(tx)
		for _, advisorID := range ids {
			tot := totals[advisorID]
			stmt := repository.SettlementStatement{
				Month:            month,
				AdvisorID:        advisorID,
				GrossCents:       tot.gross,
				TeamLeadDedCents: tot.deduction,
				OverrideIncCents: overrides[advisorID],
				ChargebackCents:  tot.chargeback,
				Status:           repository.SettlementComputed,
			}
			stmt.NetCents = stmt.GrossCents - stmt.TeamLeadDedCents
			stmt.PayoutCents = stmt.NetCents + stmt.ChargebackCents + stmt.OverrideIncCents

			latest, err := repo.Latest(ctx, month, advisorID)
			if err != nil {
				return err
			}
			switch {
			case latest == nil:
				stmt.ID = uuid.NewString()
				stmt.Revision = 1
				if err := repo.Insert(ctx, stmt); err != nil {
					return err
				}
			case latest.Status == repository.SettlementApproved || latest.Status == repository.SettlementPaid:
				stmt.ID = uuid.NewString()
				stmt.Revision = latest.Revision + 1
				if err := repo.Insert(ctx, stmt); err != nil {
					return err
				}
			default:
				stmt.ID = latest.ID
				stmt.Revision = latest.Revision
				if err := repo.UpdateAmounts(ctx, stmt); err != nil {
					return err
				}
			}
			out = append(out, stmt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Log != nil {
		s.Log.Info("settlements generated", zap.String("month", month), zap.Int("statements", len(out)))
	}
	return out, nil
}

// Transition moves one statement through the review workflow.
func (s *Settler) Transition(ctx context.Context, id, to string) (*repository.SettlementStatement, error) {
	repo := repository.NewSettlementRepo(s.DB)
	stmt, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, apperr.New(apperr.NotFound, "settlement %s not found", id)
	}
	allowed, ok := statementTransitions[stmt.Status]
	if !ok {
		return nil, apperr.New(apperr.Integrity, "settlement %s has unknown status %q", id, stmt.Status)
	}
	valid := false
	for _, next := range allowed {
		if next == to {
			valid = true
			break
		}
	}
	if !valid {
		return nil, apperr.New(apperr.Conflict, "cannot move settlement from %s to %s", stmt.Status, to)
	}
	if err := repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	stmt.Status = to
	if s.Log != nil {
		s.Log.Info("settlement status changed", zap.String("settlement_id", id), zap.String("status", to))
	}
	return stmt, nil
}

type monthTotals struct {
	gross      int64
	deduction  int64
	chargeback int64
}

// Positive amounts feed gross and the team-lead deduction; negative amounts
// only ever reduce the payout via the advisor share, never the lead's.
func aggregateMonth(ctx context.Context, db repository.DBTX, from, to time.Time) (map[string]monthTotals, error) {
	rows, err := db.QueryContext(ctx, `
	SELECT advisor_id,
	 COALESCE(SUM(CASE WHEN amount > 0 THEN COALESCE(advisor_share, 0) + COALESCE(team_lead_share, 0) END), 0),
	 COALESCE(SUM(CASE WHEN amount > 0 THEN COALESCE(team_lead_share, 0) END), 0),
	 COALESCE(SUM(CASE WHEN amount < 0 THEN COALESCE(advisor_share, 0) END), 0)
	FROM commissions
	WHERE advisor_id IS NOT NULL
	  AND match_status IN ('auto_matched', 'manual_matched')
	  AND payment_date >= ? AND payment_date < ?
	GROUP BY advisor_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[string]monthTotals{}
	for rows.Next() {
		var id string
		var t monthTotals
		if err := rows.Scan(&id, &t.gross, &t.deduction, &t.chargeback); err != nil {
			return nil, err
		}
		totals[id] = t
	}
	return totals, rows.Err()
}

func aggregateOverrides(ctx context.Context, db repository.DBTX, from, to time.Time) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `
	SELECT a.team_lead_id, COALESCE(SUM(k.team_lead_share), 0)
	FROM commissions k
	JOIN advisors a ON a.id = k.advisor_id
	WHERE a.team_lead_id IS NOT NULL
	  AND k.amount > 0
	  AND k.match_status IN ('auto_matched', 'manual_matched')
	  AND k.payment_date >= ? AND k.payment_date < ?
	GROUP BY a.team_lead_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := map[string]int64{}
	for rows.Next() {
		var id string
		var cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, err
		}
		if cents != 0 {
			overrides[id] = cents
		}
	}
	return overrides, rows.Err()
}
