package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by snapshotting backends. Each bucket holds one JSON array.
const (
	BucketUsers         = "users"
	BucketProjects      = "projects"
	BucketApplications  = "applications"
	BucketRegistrations = "registrations"
	BucketEnquiries     = "enquiries"
)

// Buckets lists the bucket names in flush order.
var Buckets = []string{BucketUsers, BucketProjects, BucketApplications, BucketRegistrations, BucketEnquiries}

// EncodeBuckets marshals every bucket of the snapshot. Nothing is returned
// unless all buckets encode.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketUsers:
			data, err = json.Marshal(nonNil(snapshot.Users))
		case BucketProjects:
			data, err = json.Marshal(nonNil(snapshot.Projects))
		case BucketApplications:
			data, err = json.Marshal(nonNil(snapshot.Applications))
		case BucketRegistrations:
			data, err = json.Marshal(nonNil(snapshot.Registrations))
		case BucketEnquiries:
			data, err = json.Marshal(nonNil(snapshot.Enquiries))
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals payload into the matching snapshot field. Unknown
// buckets are ignored.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketUsers:
		target = &snapshot.Users
	case BucketProjects:
		target = &snapshot.Projects
	case BucketApplications:
		target = &snapshot.Applications
	case BucketRegistrations:
		target = &snapshot.Registrations
	case BucketEnquiries:
		target = &snapshot.Enquiries
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
