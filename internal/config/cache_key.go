package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptStartKey returns the cache key for an attempt's authoritative start
// time (Unix seconds). Postgres remains the source of truth; this key is a
// fast path for remaining-time computation.
func (r *CacheKeyStruct) AttemptStartKey(examID string, userID string) string {
	return fmt.Sprintf("user:%s:exam:%s:attempt_start", userID, examID)
}

// ExamDurationKey returns the cache key for an exam's duration in minutes.
func (r *CacheKeyStruct) ExamDurationKey(examID string) string {
	return fmt.Sprintf("exam:%s:duration", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name carrying live
// integrity events for an exam.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
