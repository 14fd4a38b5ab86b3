package content

import "time"

type Source string

const (
	SourceUnknown Source = "unknown"
	SourceSeed    Source = "seed"
	SourceDisk    Source = "disk"
	SourceS3      Source = "s3"
)

type Meta struct {
	Version    string    `json:"version,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	ReleaseID  string    `json:"release_id,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
	Source     Source    `json:"source,omitempty"`
	Signed     bool      `json:"signed"`
}
