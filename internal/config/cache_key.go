package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptStartKey returns the cache key for an attempt's wall-clock start.
// Kept in Redis so elapsed-time gates survive a gateway restart.
func (r *CacheKeyStruct) AttemptStartKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:started_at", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's answers hash
// (field = question id, value = canonical raw answer).
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:answers", attemptID)
}

// AttemptStatusKey returns the cache key for an attempt's question-status
// hash (field = question id, value = QuestionStatus).
func (r *CacheKeyStruct) AttemptStatusKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:statuses", attemptID)
}

// AttemptPositionKey returns the cache key for an attempt's current
// section/question position.
func (r *CacheKeyStruct) AttemptPositionKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:position", attemptID)
}

// SectionEnteredKey returns the cache key for the time the candidate entered
// their current section, used by the section minimum-time gate.
func (r *CacheKeyStruct) SectionEnteredKey(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:section_entered_at", attemptID)
}

var CacheKey = NewCacheKeyStruct()
