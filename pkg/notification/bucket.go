package notification

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/health"
)

// Bucket is the debounce category of one paging severity.
type Bucket string

const (
	BucketMaintenance      Bucket = "maintenance"
	BucketServiceDisrupted Bucket = "service-disrupted"
	BucketMainDegraded     Bucket = "main-degraded"
	BucketPartialDegraded  Bucket = "partial-degraded"
)

// SubjectTimeLayout formats the timestamp appended to every subject.
const SubjectTimeLayout = "January 02, 2006 - 03:04 PM MST"

var subjects = map[Bucket]string{
	BucketMaintenance:      "Process map unreachable",
	BucketServiceDisrupted: "Service disrupted by an external force",
	BucketMainDegraded:     "Main functionality degraded",
	BucketPartialDegraded:  "Some components degraded",
}

// BucketFor maps an aggregate to its bucket. Healthy and limited have none.
func BucketFor(aggregate health.Aggregate) (Bucket, bool) {
	switch aggregate {
	case health.AggregateMaintenance:
		return BucketMaintenance, true
	case health.AggregateServiceDisrupted:
		return BucketServiceDisrupted, true
	case health.AggregateMainDegraded:
		return BucketMainDegraded, true
	case health.AggregatePartialDegraded:
		return BucketPartialDegraded, true
	}
	return "", false
}

// Subject returns the email subject of bucket at the given time.
func Subject(bucket Bucket, now time.Time) string {
	text, ok := subjects[bucket]
	if !ok {
		text = string(bucket)
	}
	return fmt.Sprintf("%s - %s", text, now.Format(SubjectTimeLayout))
}
