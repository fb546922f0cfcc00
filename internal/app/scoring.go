package app

import "team-quiz-service/internal/domain"

// Score counts questions whose selected option equals the correct one. Missing
// answers never match and the order of questions does not matter.
func Score(questions []domain.Question, answers domain.Answers) int {
	score := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectAnswer {
			score++
		}
	}
	return score
}
