package service

import (
	"github.com/shopspring/decimal"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database/repository"
)

// Split holds the three-way revenue split of one commission, in cents.
type Split struct {
	AdvisorShare  int64
	TeamLeadShare int64
	AgencyShare   int64
}

var hundred = decimal.NewFromInt(100)

// ComputeSplit computes the advisor / team-lead / agency split for a
// commission amount. Intermediate values stay unrounded decimals; each
// emitted share is rounded once, half away from zero, at the cent. The
// agency share is derived from the original amount so the three shares sum
// to the amount exactly, for chargebacks included. A team lead never absorbs
// a clawback: on negative amounts the override share is forced to zero.
func ComputeSplit(amountCents int64, advisor repository.Advisor, teamLead *repository.Advisor) (Split, error) {
	amount := decimal.NewFromInt(amountCents)
	rate := decimal.NewFromFloat(advisor.CommissionRate)

	advisorGross := amount.Mul(rate).Div(hundred)
	grossRounded := advisorGross.Round(0)

	teamLeadShare := decimal.Zero
	if teamLead != nil && teamLead.OverrideRate != nil && amountCents > 0 {
		override := decimal.NewFromFloat(*teamLead.OverrideRate)
		basis := repository.BasisAdvisorShare
		if teamLead.OverrideBasis != nil {
			basis = *teamLead.OverrideBasis
		}
		var tl decimal.Decimal
		switch basis {
		case repository.BasisGrossAmount:
			tl = amount.Mul(override).Div(hundred)
		default:
			tl = advisorGross.Mul(override).Div(hundred)
		}
		// the override never exceeds what the advisor earned
		if tl.GreaterThan(advisorGross) {
			tl = advisorGross
		}
		teamLeadShare = tl.Round(0)
		if teamLeadShare.GreaterThan(grossRounded) {
			teamLeadShare = grossRounded
		}
	}

	s := Split{
		AdvisorShare:  grossRounded.Sub(teamLeadShare).IntPart(),
		TeamLeadShare: teamLeadShare.IntPart(),
		AgencyShare:   amountCents - grossRounded.IntPart(),
	}
	if s.AdvisorShare+s.TeamLeadShare+s.AgencyShare != amountCents {
		return Split{}, apperr.New(apperr.Integrity,
			"split does not reconcile: %d + %d + %d != %d",
			s.AdvisorShare, s.TeamLeadShare, s.AgencyShare, amountCents)
	}
	return s, nil
}
