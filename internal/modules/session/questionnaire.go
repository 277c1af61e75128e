package session

import (
	"fmt"

	"github.com/blumarkets/strata/internal/domain"
)

// maxAnswerValue is the top of the per-question answer scale (0..4).
const maxAnswerValue = 4

// Score converts questionnaire answers into a 0-100 risk score. Each answer
// is on a 0..4 scale; the score is the achieved fraction of the maximum,
// floored to an integer.
func Score(answers []int) (int, error) {
	if len(answers) == 0 {
		return 0, fmt.Errorf("questionnaire has no answers")
	}

	var sum int
	for i, a := range answers {
		if a < 0 || a > maxAnswerValue {
			return 0, fmt.Errorf("answer %d out of range: %d", i+1, a)
		}
		sum += a
	}

	return sum * 100 / (maxAnswerValue * len(answers)), nil
}

// SplitForScore maps a risk score onto a target split. Higher scores shift
// weight from the foundation layer toward growth and upside. Every band
// keeps foundation at or above the structural floor and upside at or below
// the cap, so an on-target portfolio is always classifiable as SAFE.
func SplitForScore(score int) domain.TargetSplit {
	switch {
	case score < 20:
		return domain.TargetSplit{Foundation: 70, Growth: 20, Upside: 10}
	case score < 40:
		return domain.TargetSplit{Foundation: 60, Growth: 30, Upside: 10}
	case score < 60:
		return domain.TargetSplit{Foundation: 50, Growth: 35, Upside: 15}
	case score < 80:
		return domain.TargetSplit{Foundation: 45, Growth: 35, Upside: 20}
	default:
		return domain.TargetSplit{Foundation: 40, Growth: 35, Upside: 25}
	}
}
