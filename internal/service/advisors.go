package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/provia/courtage/internal/apperr"
	"github.com/provia/courtage/internal/database/repository"
)

// Advisors validates and persists advisor records and keeps already-computed
// splits consistent when rates change.
type Advisors struct {
	DB      *sql.DB
	Log     *zap.Logger
	Matcher *Matcher
}

// AdvisorInput is the write shape shared by create and update.
type AdvisorInput struct {
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	CommissionRate float64  `json:"commission_rate"`
	TeamLeadID     *string  `json:"team_lead_id,omitempty"`
	OverrideRate   *float64 `json:"override_rate,omitempty"`
	OverrideBasis  *string  `json:"override_basis,omitempty"`
}

func (s *Advisors) Create(ctx context.Context, in AdvisorInput) (*repository.Advisor, error) {
	a, err := s.validated(ctx, uuid.NewString(), in)
	if err != nil {
		return nil, err
	}
	if err := repository.NewAdvisorRepo(s.DB).Insert(ctx, a); err != nil {
		return nil, err
	}
	if s.Log != nil {
		s.Log.Info("advisor created", zap.String("advisor_id", a.ID), zap.String("name", a.Name))
	}
	return &a, nil
}

// Update rewrites the advisor and, when the rate model changed, recomputes
// the splits of every commission already matched to them. Returns how many
// splits were rewritten.
func (s *Advisors) Update(ctx context.Context, id string, in AdvisorInput) (*repository.Advisor, int, error) {
	repo := repository.NewAdvisorRepo(s.DB)
	existing, err := repo.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if existing == nil {
		return nil, 0, apperr.New(apperr.NotFound, "advisor %s not found", id)
	}

	a, err := s.validated(ctx, id, in)
	if err != nil {
		return nil, 0, err
	}
	a.Active = existing.Active
	if err := repo.Update(ctx, a); err != nil {
		return nil, 0, err
	}

	recomputed := 0
	if s.Matcher != nil && rateModelChanged(*existing, a) {
		if recomputed, err = s.Matcher.RecomputeForAdvisor(ctx, id); err != nil {
			return nil, 0, err
		}
	}
	// an override change shifts the splits of the whole team, not the lead's own
	if s.Matcher != nil && overrideChanged(*existing, a) {
		team, err := repo.List(ctx, false)
		if err != nil {
			return nil, 0, err
		}
		for _, member := range team {
			if member.TeamLeadID == nil || *member.TeamLeadID != id {
				continue
			}
			n, err := s.Matcher.RecomputeForAdvisor(ctx, member.ID)
			if err != nil {
				return nil, 0, err
			}
			recomputed += n
		}
	}
	if s.Log != nil {
		s.Log.Info("advisor updated", zap.String("advisor_id", id), zap.Int("splits_recomputed", recomputed))
	}
	return &a, recomputed, nil
}

// Deactivate soft-deletes. History keeps its splits; future matching simply
// stops resolving to this advisor.
func (s *Advisors) Deactivate(ctx context.Context, id string) error {
	repo := repository.NewAdvisorRepo(s.DB)
	existing, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.New(apperr.NotFound, "advisor %s not found", id)
	}
	return repo.Deactivate(ctx, id)
}

func (s *Advisors) Get(ctx context.Context, id string) (*repository.Advisor, error) {
	a, err := repository.NewAdvisorRepo(s.DB).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.New(apperr.NotFound, "advisor %s not found", id)
	}
	return a, nil
}

func (s *Advisors) List(ctx context.Context, activeOnly bool) ([]repository.Advisor, error) {
	return repository.NewAdvisorRepo(s.DB).List(ctx, activeOnly)
}

func (s *Advisors) validated(ctx context.Context, id string, in AdvisorInput) (repository.Advisor, error) {
	var zero repository.Advisor
	if strings.TrimSpace(in.Name) == "" {
		return zero, apperr.New(apperr.Validation, "advisor name required")
	}
	role := in.Role
	if role == "" {
		role = repository.RoleAdvisor
	}
	switch role {
	case repository.RoleAdvisor, repository.RoleTeamLead, repository.RoleBackOffice:
	default:
		return zero, apperr.New(apperr.Validation, "unknown role %q", in.Role)
	}
	if in.CommissionRate < 0 || in.CommissionRate > 100 {
		return zero, apperr.New(apperr.Validation, "commission rate must be within 0..100, got %v", in.CommissionRate)
	}
	if (in.OverrideRate == nil) != (in.OverrideBasis == nil) {
		return zero, apperr.New(apperr.Validation, "override rate and basis must be set together")
	}
	if in.OverrideRate != nil {
		if *in.OverrideRate < 0 || *in.OverrideRate > 100 {
			return zero, apperr.New(apperr.Validation, "override rate must be within 0..100, got %v", *in.OverrideRate)
		}
		switch *in.OverrideBasis {
		case repository.BasisAdvisorShare, repository.BasisGrossAmount:
		default:
			return zero, apperr.New(apperr.Validation, "unknown override basis %q", *in.OverrideBasis)
		}
	}
	if in.TeamLeadID != nil {
		if err := s.checkLeadChain(ctx, id, *in.TeamLeadID); err != nil {
			return zero, err
		}
	}
	return repository.Advisor{
		ID:             id,
		Name:           strings.TrimSpace(in.Name),
		Role:           role,
		CommissionRate: in.CommissionRate,
		TeamLeadID:     in.TeamLeadID,
		OverrideRate:   in.OverrideRate,
		OverrideBasis:  in.OverrideBasis,
		Active:         true,
	}, nil
}

// checkLeadChain verifies the lead exists and that following team_lead_id
// from it never returns to the advisor being written.
func (s *Advisors) checkLeadChain(ctx context.Context, id, leadID string) error {
	if leadID == id {
		return apperr.New(apperr.Validation, "advisor cannot be their own team lead")
	}
	repo := repository.NewAdvisorRepo(s.DB)
	seen := map[string]bool{id: true}
	current := leadID
	for current != "" {
		if seen[current] {
			return apperr.New(apperr.Validation, "team lead chain contains a cycle via %s", current)
		}
		seen[current] = true
		lead, err := repo.Get(ctx, current)
		if err != nil {
			return err
		}
		if lead == nil {
			return apperr.New(apperr.NotFound, "team lead %s not found", current)
		}
		if lead.TeamLeadID == nil {
			break
		}
		current = *lead.TeamLeadID
	}
	return nil
}

func rateModelChanged(old, updated repository.Advisor) bool {
	if old.CommissionRate != updated.CommissionRate {
		return true
	}
	if !floatPtrEqual(old.OverrideRate, updated.OverrideRate) {
		return true
	}
	if !strPtrEqual(old.OverrideBasis, updated.OverrideBasis) {
		return true
	}
	return !strPtrEqual(old.TeamLeadID, updated.TeamLeadID)
}

func overrideChanged(old, updated repository.Advisor) bool {
	return !floatPtrEqual(old.OverrideRate, updated.OverrideRate) ||
		!strPtrEqual(old.OverrideBasis, updated.OverrideBasis)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
