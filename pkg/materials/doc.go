// Package materials manages training materials: organization-scoped
// metadata in PostgreSQL, content in S3-compatible blob storage, and the
// /api/materials endpoints.
package materials
