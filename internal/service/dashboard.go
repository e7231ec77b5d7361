package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/provia/courtage/internal/database/repository"
)

// Dashboard aggregates the read-only overview numbers.
type Dashboard struct {
	DB *sql.DB
}

// AdvisorTotals is one advisor's earnings within a date window.
type AdvisorTotals struct {
	AdvisorID       string `json:"advisor_id"`
	Name            string `json:"name"`
	GrossCents      int64  `json:"gross_cents"`
	NetCents        int64  `json:"net_cents"`
	ChargebackCents int64  `json:"chargeback_cents"`
}

// Summary is the dashboard payload: per-advisor totals plus the open
// clearance buckets.
type Summary struct {
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Advisors  []AdvisorTotals `json:"advisors"`
	Clearance ClearanceCounts `json:"clearance"`
}

func (d *Dashboard) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	totals, err := aggregateMonth(ctx, d.DB, from, to)
	if err != nil {
		return Summary{}, err
	}
	advisors, err := repository.NewAdvisorRepo(d.DB).List(ctx, false)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{From: from, To: to}
	for _, a := range advisors {
		tot, ok := totals[a.ID]
		if !ok {
			continue
		}
		sum.Advisors = append(sum.Advisors, AdvisorTotals{
			AdvisorID:       a.ID,
			Name:            a.Name,
			GrossCents:      tot.gross,
			NetCents:        tot.gross - tot.deduction,
			ChargebackCents: tot.chargeback,
		})
	}

	clearance := &Clearance{DB: d.DB}
	if sum.Clearance, err = clearance.Counts(ctx); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
