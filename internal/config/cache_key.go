package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptDeadlineKey returns the cache key for an attempt's submission deadline
func (r *CacheKeyStruct) AttemptDeadlineKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:deadline", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's buffered answers
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AssessmentPaperKey returns the cache key for an assessment's student-facing paper
func (r *CacheKeyStruct) AssessmentPaperKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:paper", assessmentID)
}

// AssessmentAnswerKeyKey returns the cache key for an assessment's hidden answer key
func (r *CacheKeyStruct) AssessmentAnswerKeyKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:key", assessmentID)
}

// MockSessionDeadlineKey returns the cache key for a mock-exam session's shared deadline
func (r *CacheKeyStruct) MockSessionDeadlineKey(sessionID string) string {
	return fmt.Sprintf("mocksession:%s:deadline", sessionID)
}

// StudentActiveAttemptKey returns the cache key for a student's currently active attempt
func (r *CacheKeyStruct) StudentActiveAttemptKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_attempt", studentID)
}

// AssessmentMonitorChannel returns the Redis PubSub channel name for the
// staff live violation monitor of one assessment.
func (r *CacheKeyStruct) AssessmentMonitorChannel(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:monitor", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
