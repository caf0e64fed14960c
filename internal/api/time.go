package api

import "time"

var nowFunc = time.Now

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
