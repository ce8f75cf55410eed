package materials

import (
	"time"

	"github.com/google/uuid"
)

// Material is a training material owned by an organization. Content lives in
// blob storage under StorageKey; this row is the metadata.
type Material struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID string    `json:"organizationId"`
	TrainerID      string    `json:"trainerId"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ContentType    string    `json:"contentType,omitempty"`
	SizeBytes      int64     `json:"sizeBytes"`
	StorageKey     string    `json:"storageKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreateMaterialRequest is the POST /api/materials payload. Content is
// base64-embedded for small uploads; OrganizationID and TrainerID are
// optional and must match the caller when present.
type CreateMaterialRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
	Content        string `json:"content,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	TrainerID      string `json:"trainerId,omitempty"`
}
