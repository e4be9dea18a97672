package models

import "time"

// Artifact is one serialized model artifact stored in a bundle database.
type Artifact struct {
	Name      string
	Content   []byte
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// ArtifactImport records one bundle import for auditing which training run
// the database currently serves.
type ArtifactImport struct {
	ID            int64
	Origin        string
	ModelVersion  string
	ArtifactCount int
	ImportedAt    time.Time
}
