package models

import "time"

// CatalogEntry represents the domain model for a deployable tool in the
// platform catalog.
// This is a database-agnostic business entity.
type CatalogEntry struct {
	Id          string
	Name        string
	Description string

	// ImageRef is the container image reference the agent deploys, either a
	// fully-qualified external reference or a repository in the platform's
	// ECR registry.
	ImageRef string

	// DefaultConfigJson is an opaque JSON document merged with per-instance
	// overrides at deploy time.
	DefaultConfigJson string

	CreatedAt time.Time
	UpdatedAt time.Time
}
