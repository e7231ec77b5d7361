package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database/repository"
)

func TestAutoMatchExactPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	contract := seedContract(t, db, repository.Contract{
		PolicyNumber: "VS-12345",
		AdvisorID:    &advisor.ID,
	})
	comm := seedCommission(t, db, repository.Commission{
		PolicyNumber: "00-123.45",
		AmountCents:  100000,
	})
	require.Equal(t, contract.NormalizedPolicy, comm.NormalizedPolicy)

	sum, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, sum.ExactMatched)
	require.Equal(t, 1, sum.SplitsComputed)

	got := getCommission(t, db, comm.ID)
	require.Equal(t, repository.MatchAuto, got.MatchStatus)
	require.NotNil(t, got.Confidence)
	require.Equal(t, 1.0, *got.Confidence)
	require.Equal(t, &contract.ID, got.ContractID)
	require.Equal(t, &advisor.ID, got.AdvisorID)
	require.Equal(t, int64(40000), *got.AdvisorShare)
	require.Equal(t, int64(0), *got.TeamLeadShare)
	require.Equal(t, int64(60000), *got.AgencyShare)

	require.Equal(t, repository.ContractCommissionReceived, getContract(t, db, contract.ID).Status)
}

func TestAutoMatchAltPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Jonas Gross", CommissionRate: 30})
	contract := seedContract(t, db, repository.Contract{
		PolicyNumber:        "LV-900",
		AltPolicyNumber:     strPtr("ALT-7788"),
		NormalizedAltPolicy: strPtr("7788"),
		AdvisorID:           &advisor.ID,
	})
	comm := seedCommission(t, db, repository.Commission{
		PolicyNumber: "7788",
		AmountCents:  5000,
	})

	sum, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 0, sum.ExactMatched)
	require.Equal(t, 1, sum.AltMatched)

	got := getCommission(t, db, comm.ID)
	require.Equal(t, repository.MatchAuto, got.MatchStatus)
	require.Equal(t, 0.9, *got.Confidence)
	require.Equal(t, &contract.ID, got.ContractID)
}

func TestAutoMatchConsultationCreatesContract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Mara Klein", CommissionRate: 35})
	when := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	seedConsultation(t, db, repository.Consultation{
		PolicyNumber: "KV-555.01",
		AdvisorID:    &advisor.ID,
		HolderName:   strPtr("Maier, Hans"),
		ConsultedAt:  &when,
	})
	comm := seedCommission(t, db, repository.Commission{
		PolicyNumber: "5551", // collides with KV-555.01 once zeros drop
		AmountCents:  20000,
	})

	sum, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, sum.ContractsCreated)
	require.Equal(t, 1, sum.ConsultationMatched)

	contract, err := repository.NewContractRepo(db).GetByNormalizedPolicy(ctx, comm.NormalizedPolicy)
	require.NoError(t, err)
	require.NotNil(t, contract)
	require.Equal(t, repository.SourceConsultation, contract.Source)
	require.Equal(t, &advisor.ID, contract.AdvisorID)

	got := getCommission(t, db, comm.ID)
	require.Equal(t, repository.MatchAuto, got.MatchStatus)
	require.Equal(t, 0.85, *got.Confidence)
	require.Equal(t, &advisor.ID, got.AdvisorID)
	require.NotNil(t, got.AdvisorShare)
}

func TestAutoMatchBrokerMapping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Timo Berg", CommissionRate: 25})
	contract := seedContract(t, db, repository.Contract{PolicyNumber: "HV-4711"})
	seedMapping(t, db, "Berg, Timo (Extern)", advisor.ID)
	comm := seedCommission(t, db, repository.Commission{
		PolicyNumber: "4711",
		AmountCents:  8000,
		BrokerName:   strPtr("BERG, TIMO (extern)"),
	})

	sum, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, sum.ExactMatched)
	require.Equal(t, 1, sum.MappingResolved)

	got := getCommission(t, db, comm.ID)
	require.Equal(t, &contract.ID, got.ContractID)
	require.Equal(t, &advisor.ID, got.AdvisorID)
	require.Equal(t, int64(2000), *got.AdvisorShare)

	// the mapping resolves the commission, not the contract
	require.Nil(t, getContract(t, db, contract.ID).AdvisorID)
}

func TestAutoMatchIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	seedContract(t, db, repository.Contract{PolicyNumber: "VS-1", AdvisorID: &advisor.ID})
	comm := seedCommission(t, db, repository.Commission{PolicyNumber: "VS-1", AmountCents: 10000})

	first, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, first.ExactMatched)

	before := getCommission(t, db, comm.ID)
	second, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, MatchSummary{}, second)
	require.Equal(t, before, getCommission(t, db, comm.ID))
}

func TestAutoMatchLeavesManualAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	anna := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	timo := seedAdvisor(t, db, repository.Advisor{Name: "Timo Berg", CommissionRate: 25})
	right := seedContract(t, db, repository.Contract{PolicyNumber: "VS-1", AdvisorID: &anna.ID})
	seedContract(t, db, repository.Contract{PolicyNumber: "VS-2", AdvisorID: &timo.ID})

	comm := seedCommission(t, db, repository.Commission{PolicyNumber: "VS-2", AmountCents: 10000})
	require.NoError(t, m.Assign(ctx, comm.ID, right.ID, anna.ID))

	sum, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 0, sum.total())

	got := getCommission(t, db, comm.ID)
	require.Equal(t, repository.MatchManual, got.MatchStatus)
	require.Equal(t, &right.ID, got.ContractID)
	require.Equal(t, &anna.ID, got.AdvisorID)
}

func TestAutoMatchBatchScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	seedContract(t, db, repository.Contract{PolicyNumber: "VS-1", AdvisorID: &advisor.ID})
	seedContract(t, db, repository.Contract{PolicyNumber: "VS-2", AdvisorID: &advisor.ID})

	batchA := seedBatch(t, db, repository.SourceCommissionList)
	batchB := seedBatch(t, db, repository.SourceCommissionList)
	inA := seedCommission(t, db, repository.Commission{BatchID: batchA, PolicyNumber: "VS-1", AmountCents: 1000})
	inB := seedCommission(t, db, repository.Commission{BatchID: batchB, PolicyNumber: "VS-2", AmountCents: 1000})

	sum, err := m.AutoMatch(ctx, batchA)
	require.NoError(t, err)
	require.Equal(t, 1, sum.ExactMatched)

	require.Equal(t, repository.MatchAuto, getCommission(t, db, inA.ID).MatchStatus)
	require.Equal(t, repository.MatchUnmatched, getCommission(t, db, inB.ID).MatchStatus)
}

func TestAutoMatchChargebackWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	contract := seedContract(t, db, repository.Contract{PolicyNumber: "VS-1", AdvisorID: &advisor.ID})
	seedCommission(t, db, repository.Commission{PolicyNumber: "VS-1", AmountCents: 10000})
	neg := seedCommission(t, db, repository.Commission{PolicyNumber: "VS-1", AmountCents: -4000})

	_, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, repository.ContractChargeback, getContract(t, db, contract.ID).Status)

	// chargeback keeps its team-lead share at zero
	got := getCommission(t, db, neg.ID)
	require.Equal(t, int64(-1600), *got.AdvisorShare)
	require.Equal(t, int64(0), *got.TeamLeadShare)

	// a later run must not flip the contract back
	sum, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 0, sum.ContractsAdvanced)
	require.Equal(t, repository.ContractChargeback, getContract(t, db, contract.ID).Status)
}

func TestAssignPropagatesToSiblings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	lead := seedAdvisor(t, db, repository.Advisor{
		Name: "Vera Lang", Role: repository.RoleTeamLead, CommissionRate: 50,
		OverrideRate:  floatPtr(10),
		OverrideBasis: strPtr(repository.BasisAdvisorShare),
	})
	advisor := seedAdvisor(t, db, repository.Advisor{
		Name: "Anna Huber", CommissionRate: 40, TeamLeadID: &lead.ID,
	})
	contract := seedContract(t, db, repository.Contract{PolicyNumber: "VS-9"})
	first := seedCommission(t, db, repository.Commission{PolicyNumber: "00-9", AmountCents: 100000})
	sibling := seedCommission(t, db, repository.Commission{PolicyNumber: "9", AmountCents: 50000})
	other := seedCommission(t, db, repository.Commission{PolicyNumber: "77", AmountCents: 1000})

	require.NoError(t, m.Assign(ctx, first.ID, contract.ID, advisor.ID))

	got := getCommission(t, db, first.ID)
	require.Equal(t, repository.MatchManual, got.MatchStatus)
	require.Nil(t, got.Confidence)
	require.Equal(t, &contract.ID, got.ContractID)
	require.Equal(t, int64(36000), *got.AdvisorShare)
	require.Equal(t, int64(4000), *got.TeamLeadShare)
	require.Equal(t, int64(60000), *got.AgencyShare)

	sib := getCommission(t, db, sibling.ID)
	require.Equal(t, repository.MatchManual, sib.MatchStatus)
	require.Equal(t, &contract.ID, sib.ContractID)
	require.Equal(t, int64(18000), *sib.AdvisorShare)

	require.Equal(t, repository.MatchUnmatched, getCommission(t, db, other.ID).MatchStatus)
	require.Equal(t, repository.ContractCommissionReceived, getContract(t, db, contract.ID).Status)
}

func TestAssignUnknownEntities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	contract := seedContract(t, db, repository.Contract{PolicyNumber: "VS-1"})
	comm := seedCommission(t, db, repository.Commission{PolicyNumber: "VS-1", AmountCents: 1000})

	require.Equal(t, apperr.NotFound, apperr.KindOf(m.Assign(ctx, "nope", contract.ID, advisor.ID)))
	require.Equal(t, apperr.NotFound, apperr.KindOf(m.Assign(ctx, comm.ID, "nope", advisor.ID)))
	require.Equal(t, apperr.NotFound, apperr.KindOf(m.Assign(ctx, comm.ID, contract.ID, "nope")))
}

func TestAssignRollsBackCompletely(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}
	m.assignHook = func() error { return errors.New("boom") }

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	contract := seedContract(t, db, repository.Contract{PolicyNumber: "VS-1"})
	comm := seedCommission(t, db, repository.Commission{PolicyNumber: "VS-1", AmountCents: 1000})

	err := m.Assign(ctx, comm.ID, contract.ID, advisor.ID)
	require.Error(t, err)

	got := getCommission(t, db, comm.ID)
	require.Equal(t, repository.MatchUnmatched, got.MatchStatus)
	require.Nil(t, got.ContractID)
	require.Nil(t, got.AdvisorID)
	require.Nil(t, got.AdvisorShare)
}

// The pipeline is set-based SQL; this test replays the same rules row by row
// in Go over a synthetic dataset and requires identical outcomes.
func TestAutoMatchAgreesWithRowByRowModel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisors := make([]repository.Advisor, 4)
	for i := range advisors {
		advisors[i] = seedAdvisor(t, db, repository.Advisor{
			Name:           "Advisor " + string(rune('A'+i)),
			CommissionRate: float64(20 + 5*i),
		})
	}

	// contracts 1..6: even ones have no advisor, 3 and 6 carry alt policies
	contracts := map[string]repository.Contract{}
	for i := 1; i <= 6; i++ {
		c := repository.Contract{PolicyNumber: "P-" + string(rune('0'+i))}
		if i%2 == 1 {
			c.AdvisorID = &advisors[i%len(advisors)].ID
		}
		if i%3 == 0 {
			alt := "8" + string(rune('0'+i))
			c.NormalizedAltPolicy = &alt
		}
		stored := seedContract(t, db, c)
		contracts[stored.NormalizedPolicy] = stored
	}

	// consultation for a policy with no contract at all
	consAdvisor := advisors[0]
	seedConsultation(t, db, repository.Consultation{
		PolicyNumber: "P-77",
		AdvisorID:    &consAdvisor.ID,
	})
	mapped := advisors[1]
	seedMapping(t, db, "Extern GmbH", mapped.ID)

	type expectation struct {
		policy  string
		broker  *string
		advisor *string // resolved advisor, nil when unresolvable
		matched bool
	}
	extern := "Extern GmbH"
	cases := []expectation{
		{policy: "P-1", matched: true, advisor: contracts["1"].AdvisorID},
		{policy: "P-2", matched: true, broker: &extern, advisor: &mapped.ID},
		{policy: "P-3", matched: true, advisor: contracts["3"].AdvisorID},
		{policy: "83", matched: true, advisor: contracts["3"].AdvisorID}, // alt policy of P-3
		{policy: "P-4", matched: true, advisor: nil},
		{policy: "P-77", matched: true, advisor: &consAdvisor.ID}, // via consultation
		{policy: "P-99", matched: false, advisor: nil},
		{policy: "P-5", matched: true, advisor: contracts["5"].AdvisorID},
		{policy: "86", matched: true, broker: &extern, advisor: &mapped.ID}, // alt of P-6, advisor via mapping
	}

	ids := make([]string, len(cases))
	for i, c := range cases {
		comm := repository.Commission{PolicyNumber: c.policy, AmountCents: int64(1000 * (i + 1))}
		comm.BrokerName = c.broker
		ids[i] = seedCommission(t, db, comm).ID
	}

	_, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)

	for i, c := range cases {
		got := getCommission(t, db, ids[i])
		if !c.matched {
			require.Equal(t, repository.MatchUnmatched, got.MatchStatus, "policy %s", c.policy)
			require.Nil(t, got.ContractID, "policy %s", c.policy)
			continue
		}
		require.Equal(t, repository.MatchAuto, got.MatchStatus, "policy %s", c.policy)
		require.NotNil(t, got.ContractID, "policy %s", c.policy)
		if c.advisor == nil {
			require.Nil(t, got.AdvisorID, "policy %s", c.policy)
			require.Nil(t, got.AdvisorShare, "policy %s", c.policy)
			continue
		}
		require.Equal(t, c.advisor, got.AdvisorID, "policy %s", c.policy)
		require.NotNil(t, got.AdvisorShare, "policy %s", c.policy)
	}
}

func TestRecomputeForAdvisor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	m := &Matcher{DB: db}

	advisor := seedAdvisor(t, db, repository.Advisor{Name: "Anna Huber", CommissionRate: 40})
	seedContract(t, db, repository.Contract{PolicyNumber: "VS-1", AdvisorID: &advisor.ID})
	comm := seedCommission(t, db, repository.Commission{PolicyNumber: "VS-1", AmountCents: 10000})

	_, err := m.AutoMatch(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(4000), *getCommission(t, db, comm.ID).AdvisorShare)

	advisor.CommissionRate = 50
	require.NoError(t, repository.NewAdvisorRepo(db).Update(ctx, advisor))

	n, err := m.RecomputeForAdvisor(ctx, advisor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, int64(5000), *getCommission(t, db, comm.ID).AdvisorShare)
}
