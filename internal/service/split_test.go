package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/provia/courtage/internal/database/repository"
)

func advisorWithRate(rate float64, leadID string) repository.Advisor {
	a := repository.Advisor{ID: "adv-1", Name: "Anna Huber", Role: repository.RoleAdvisor, CommissionRate: rate, Active: true}
	if leadID != "" {
		a.TeamLeadID = &leadID
	}
	return a
}

func teamLead(override float64, basis string) *repository.Advisor {
	return &repository.Advisor{
		ID: "tl-1", Name: "Theo Lang", Role: repository.RoleTeamLead,
		CommissionRate: 0, OverrideRate: &override, OverrideBasis: &basis, Active: true,
	}
}

func TestComputeSplitNoTeamLead(t *testing.T) {
	t.Parallel()

	s, err := ComputeSplit(100000, advisorWithRate(40, ""), nil)
	require.NoError(t, err)
	require.Equal(t, int64(40000), s.AdvisorShare)
	require.Equal(t, int64(0), s.TeamLeadShare)
	require.Equal(t, int64(60000), s.AgencyShare)
}

func TestComputeSplitAdvisorShareBasis(t *testing.T) {
	t.Parallel()

	// rate 40, override 10 on advisor_share basis, 1000.00
	s, err := ComputeSplit(100000, advisorWithRate(40, "tl-1"), teamLead(10, repository.BasisAdvisorShare))
	require.NoError(t, err)
	require.Equal(t, int64(36000), s.AdvisorShare)
	require.Equal(t, int64(4000), s.TeamLeadShare)
	require.Equal(t, int64(60000), s.AgencyShare)
	require.Equal(t, int64(100000), s.AdvisorShare+s.TeamLeadShare+s.AgencyShare)
}

func TestComputeSplitGrossAmountBasis(t *testing.T) {
	t.Parallel()

	s, err := ComputeSplit(100000, advisorWithRate(40, "tl-1"), teamLead(10, repository.BasisGrossAmount))
	require.NoError(t, err)
	require.Equal(t, int64(30000), s.AdvisorShare)
	require.Equal(t, int64(10000), s.TeamLeadShare)
	require.Equal(t, int64(60000), s.AgencyShare)
}

func TestComputeSplitClampsOverride(t *testing.T) {
	t.Parallel()

	// gross_amount basis with a high override would exceed the advisor's
	// gross; the override is clamped so the advisor share never goes negative.
	s, err := ComputeSplit(100000, advisorWithRate(10, "tl-1"), teamLead(50, repository.BasisGrossAmount))
	require.NoError(t, err)
	require.Equal(t, int64(10000), s.TeamLeadShare)
	require.Equal(t, int64(0), s.AdvisorShare)
	require.Equal(t, int64(90000), s.AgencyShare)
}

func TestComputeSplitChargeback(t *testing.T) {
	t.Parallel()

	// team leads do not absorb clawbacks
	s, err := ComputeSplit(-50000, advisorWithRate(40, "tl-1"), teamLead(10, repository.BasisAdvisorShare))
	require.NoError(t, err)
	require.Equal(t, int64(-20000), s.AdvisorShare)
	require.Equal(t, int64(0), s.TeamLeadShare)
	require.Equal(t, int64(-30000), s.AgencyShare)
	require.Equal(t, int64(-50000), s.AdvisorShare+s.TeamLeadShare+s.AgencyShare)
}

func TestComputeSplitInvariantHoldsUnderOddRates(t *testing.T) {
	t.Parallel()

	amounts := []int64{1, -1, 33, 99999, -99999, 123457, 1000001, -1000001}
	rates := []float64{0, 0.5, 12.5, 33.3, 50, 66.7, 99.9, 100}
	overrides := []float64{0, 1, 7.5, 15, 100}
	for _, amt := range amounts {
		for _, rate := range rates {
			for _, ov := range overrides {
				for _, basis := range []string{repository.BasisAdvisorShare, repository.BasisGrossAmount} {
					s, err := ComputeSplit(amt, advisorWithRate(rate, "tl-1"), teamLead(ov, basis))
					require.NoError(t, err)
					require.Equal(t, amt, s.AdvisorShare+s.TeamLeadShare+s.AgencyShare,
						"amt=%d rate=%v override=%v basis=%s", amt, rate, ov, basis)
				}
			}
		}
	}
}

func TestComputeSplitRoundsHalfAwayFromZero(t *testing.T) {
	t.Parallel()

	// 25 cents at 50% = 12.5 -> 13 for the advisor, 12 for the agency
	s, err := ComputeSplit(25, advisorWithRate(50, ""), nil)
	require.NoError(t, err)
	require.Equal(t, int64(13), s.AdvisorShare)
	require.Equal(t, int64(12), s.AgencyShare)

	s, err = ComputeSplit(-25, advisorWithRate(50, ""), nil)
	require.NoError(t, err)
	require.Equal(t, int64(-13), s.AdvisorShare)
	require.Equal(t, int64(-12), s.AgencyShare)
}
