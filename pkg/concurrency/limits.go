package concurrency

import (
	"os"
	"strconv"
)

// DefaultSemaphoreLimit bounds concurrency for pools that don't specify one explicitly.
const DefaultSemaphoreLimit = 8

// GetSemaphoreLimit returns the semaphore limit from the SEMAPHORE_LIMIT
// environment variable, or DefaultSemaphoreLimit if unset or invalid.
func GetSemaphoreLimit() int {
	val := os.Getenv("SEMAPHORE_LIMIT")
	if val == "" {
		return DefaultSemaphoreLimit
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit <= 0 {
		return DefaultSemaphoreLimit
	}
	return limit
}
