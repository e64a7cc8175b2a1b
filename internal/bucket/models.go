package bucket

import (
	"time"

	"github.com/endesomnia/cloud-sub000/internal/policy"
)

// Bucket is a user's bucket as seen through the tenant prefix.
type Bucket struct {
	Name         string      `json:"name"`
	PhysicalName string      `json:"physical_name"`
	Access       policy.Mode `json:"access,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// DeleteSummary reports what a bucket deletion removed.
type DeleteSummary struct {
	Bucket         string `json:"bucket"`
	ObjectsRemoved int    `json:"objects_removed"`
	BytesRemoved   int64  `json:"bytes_removed"`
}
