package model

import "time"

// CachedResponse is a stored answer for a normalized question, shared by all users.
type CachedResponse struct {
	ID           string     `json:"id"`
	QuestionHash string     `json:"questionHash"`
	QuestionText string     `json:"questionText"`
	AnswerText   string     `json:"answerText"`
	Citations    []Citation `json:"citations"`
	AccessCount  int64      `json:"accessCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}
