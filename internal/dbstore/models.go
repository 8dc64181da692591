package dbstore

import (
	"time"

	"github.com/google/uuid"
)

// Submit is one end-to-end orchestrator invocation (spec §3, GLOSSARY).
type Submit struct {
	ID         int64     `db:"id"`
	UUID       uuid.UUID `db:"uuid"`
	SubmitTime time.Time `db:"submit_time"`
}

// Endpoint names a container host row (spec §6 table `endpoints`).
type Endpoint struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Package is a (name, version) row (spec §6 table `packages`).
type Package struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	Version string `db:"version"`
}

// Image names a container image row (spec §6 table `images`).
type Image struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// EnvVar is one (name, value) environment variable row (spec §6 table
// `envvars`).
type EnvVar struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Value string `db:"value"`
}

// Artifact is one content-addressable path row (spec §6 table
// `artifacts`).
type Artifact struct {
	ID   int64  `db:"id"`
	Path string `db:"path"`
}

// JobRecord is the persisted form of a completed Job (spec §3, §4.7).
// Written once, never updated; insert is idempotent on UUID.
type JobRecord struct {
	ID            int64     `db:"id"`
	SubmitID      int64     `db:"submit_id"`
	EndpointID    int64     `db:"endpoint_id"`
	PackageID     int64     `db:"package_id"`
	ImageID       int64     `db:"image_id"`
	ContainerHash string    `db:"container_hash"`
	ScriptText    string    `db:"script_text"`
	LogText       string    `db:"log_text"`
	UUID          uuid.UUID `db:"uuid"`
}
