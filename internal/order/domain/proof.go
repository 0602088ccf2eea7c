package domain

import "errors"

var (
	ErrProofMissing     = errors.New("proof is missing")
	ErrProofInvalidType = errors.New("proof must be a jpeg, png or webp image")
	ErrProofTooLarge    = errors.New("proof exceeds the size limit")
)

var allowedProofMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// ValidateProof gates payment proof uploads before they reach an admin.
func ValidateProof(fileID, mimeType string, sizeBytes, maxBytes int64) error {
	if fileID == "" || sizeBytes <= 0 {
		return ErrProofMissing
	}
	if _, ok := allowedProofMimeTypes[mimeType]; !ok {
		return ErrProofInvalidType
	}
	if sizeBytes > maxBytes {
		return ErrProofTooLarge
	}
	return nil
}
