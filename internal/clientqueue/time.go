package clientqueue

import "time"

const recordTimeLayout = time.RFC3339Nano

func parseRecordTime(s string) (time.Time, error) {
	return time.Parse(recordTimeLayout, s)
}
