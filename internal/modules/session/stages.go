// Package session manages the onboarding lifecycle and the draft/confirm
// flow for portfolio actions. Onboarding moves through a strict forward
// sequence of stages; there is no way back and no skipping.
package session

import "fmt"

// Stage is the onboarding stage of the account.
type Stage string

const (
	StagePhone         Stage = "PHONE"
	StageQuestionnaire Stage = "QUESTIONNAIRE"
	StageProposal      Stage = "PROPOSAL"
	StageConsent       Stage = "CONSENT"
	StageFunding       Stage = "FUNDING"
	StageActive        Stage = "ACTIVE"
)

var stageOrder = []Stage{
	StagePhone,
	StageQuestionnaire,
	StageProposal,
	StageConsent,
	StageFunding,
	StageActive,
}

func stageIndex(s Stage) int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s, or false when s is terminal.
func Next(s Stage) (Stage, bool) {
	i := stageIndex(s)
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// requireStage returns an error unless current matches want.
func requireStage(current, want Stage) error {
	if current != want {
		return fmt.Errorf("operation requires stage %s, account is in %s", want, current)
	}
	return nil
}
