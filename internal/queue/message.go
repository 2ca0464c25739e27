package queue

import (
	"time"
)

// Class identifies the kind of work a message carries. Each class has its
// own concurrency and rate limits in the worker pool.
type Class string

const (
	ClassUpload       Class = "upload"
	ClassAccountTest  Class = "account_test"
	ClassProxyCheck   Class = "proxy_check"
	ClassBatchProcess Class = "batch_process"
)

// Classes lists every known task class
func Classes() []Class {
	return []Class{ClassUpload, ClassAccountTest, ClassProxyCheck, ClassBatchProcess}
}

// Message is one unit of queued work. JobID references the entity the
// handler operates on: a job row for uploads, an account or proxy row for
// maintenance classes, a campaign row for batch processing.
type Message struct {
	ID           string  `json:"id"`
	Class        Class   `json:"task_class"`
	JobID        string  `json:"job_id"`
	DelaySeconds float64 `json:"delay_seconds"`

	// Count is only set for batch_process messages: the number of payload
	// variations to produce.
	Count int `json:"count,omitempty"`

	// DeliveryCount is incremented on every dequeue; a value above 1 means
	// the message was redelivered after a visibility timeout or nack.
	DeliveryCount int `json:"delivery_count"`

	CreatedAt     time.Time `json:"created_at"`
	NotBefore     time.Time `json:"not_before"`
	ClaimDeadline time.Time `json:"claim_deadline,omitempty"`
}

// Stats represents queue statistics
type Stats struct {
	Ready    int64           `json:"ready"`
	Due      int64           `json:"due"`
	InFlight int64           `json:"in_flight"`
	Total    int64           `json:"total"`
	ByClass  map[Class]int64 `json:"by_class"`
}
