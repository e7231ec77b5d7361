package repository

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories run on, so the
// same repository code serves plain reads and multi-step transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Advisor roles.
const (
	RoleAdvisor    = "advisor"
	RoleTeamLead   = "team_lead"
	RoleBackOffice = "back_office"
)

// Team-lead override bases.
const (
	BasisAdvisorShare = "advisor_share"
	BasisGrossAmount  = "gross_amount"
)

// Contract lifecycle statuses.
const (
	ContractProposal           = "proposal"
	ContractOpen               = "open"
	ContractConcluded          = "concluded"
	ContractCommissionReceived = "commission_received"
	ContractCommissionMissing  = "commission_missing"
	ContractCancelled          = "cancelled"
	ContractChargeback         = "chargeback"
)

// Commission match statuses.
const (
	MatchUnmatched = "unmatched"
	MatchAuto      = "auto_matched"
	MatchManual    = "manual_matched"
	MatchIgnored   = "ignored"
)

// Commission payment kinds.
const (
	KindPayment    = "payment"
	KindRenewal    = "renewal"
	KindChargeback = "chargeback"
	KindOther      = "other"
)

// Import source types.
const (
	SourceCommissionList = "commission_list"
	SourceContractList   = "contract_list"
	SourceConsultation   = "consultation"
)

// Settlement statuses.
const (
	SettlementComputed = "computed"
	SettlementReviewed = "reviewed"
	SettlementApproved = "approved"
	SettlementPaid     = "paid"
)

// Advisor represents an employee entitled to commission shares.
type Advisor struct {
	ID             string
	Name           string
	Role           string
	CommissionRate float64
	TeamLeadID     *string
	OverrideRate   *float64
	OverrideBasis  *string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contract is the canonical policy record.
type Contract struct {
	ID                  string
	PolicyNumber        string
	NormalizedPolicy    string
	AltPolicyNumber     *string
	NormalizedAltPolicy *string
	HolderName          *string
	NormalizedHolder    *string
	AdvisorID           *string
	Status              string
	Source              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Commission is one payment or chargeback line.
type Commission struct {
	ID               string
	BatchID          string
	PolicyNumber     string
	NormalizedPolicy string
	AmountCents      int64
	Kind             string
	PaymentDate      time.Time
	InstallmentIndex *int
	InstallmentCount *int
	BrokerName       *string
	NormalizedBroker *string
	HolderName       *string
	NormalizedHolder *string
	MatchStatus      string
	Confidence       *float64
	ContractID       *string
	AdvisorID        *string
	AdvisorShare     *int64
	TeamLeadShare    *int64
	AgencyShare      *int64
	RowFingerprint   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Consultation is a raw secondary-source consultation row.
type Consultation struct {
	ID               string
	BatchID          string
	PolicyNumber     string
	NormalizedPolicy string
	AdvisorName      *string
	NormalizedBroker *string
	AdvisorID        *string
	HolderName       *string
	NormalizedHolder *string
	ConsultedAt      *time.Time
	CreatedAt        time.Time
}

// BrokerMapping translates source-side free-text broker names to advisors.
type BrokerMapping struct {
	ID               string
	BrokerName       string
	NormalizedBroker string
	AdvisorID        string
	CreatedAt        time.Time
}

// ImportBatch records one successful ingest.
type ImportBatch struct {
	ID           string
	SourceType   string
	Fingerprint  string
	RowsSeen     int
	RowsImported int
	RowsSkipped  int
	RowsErrored  int
	CreatedAt    time.Time
}

// SettlementStatement is the monthly per-advisor aggregation.
type SettlementStatement struct {
	ID               string
	Month            string // YYYY-MM
	AdvisorID        string
	Revision         int
	GrossCents       int64
	TeamLeadDedCents int64
	OverrideIncCents int64
	NetCents         int64
	ChargebackCents  int64
	PayoutCents      int64
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
