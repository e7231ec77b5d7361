package service

import (
	"github.com/provia/courtage/internal/database/repository"
)

// mergeContract resolves a contract re-import against the stored record,
// field by field. It is pure so the precedence rules can be tested apart
// from persistence. The one hard rule: a contract that already reached
// commission_received (or chargeback) keeps its status; only the matching
// engine's status-advance step may move those.
func mergeContract(existing, incoming repository.Contract) repository.Contract {
	out := existing

	if incoming.PolicyNumber != "" {
		out.PolicyNumber = incoming.PolicyNumber
		out.NormalizedPolicy = incoming.NormalizedPolicy
	}
	if incoming.AltPolicyNumber != nil {
		out.AltPolicyNumber = incoming.AltPolicyNumber
		out.NormalizedAltPolicy = incoming.NormalizedAltPolicy
	}
	if incoming.HolderName != nil {
		out.HolderName = incoming.HolderName
		out.NormalizedHolder = incoming.NormalizedHolder
	}
	if out.AdvisorID == nil && incoming.AdvisorID != nil {
		out.AdvisorID = incoming.AdvisorID
	}
	if incoming.Status != "" && !terminalStatus(existing.Status) {
		out.Status = incoming.Status
	}
	return out
}

func terminalStatus(status string) bool {
	return status == repository.ContractCommissionReceived || status == repository.ContractChargeback
}
