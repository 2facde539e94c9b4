package config

// DomainConfig holds the configurable business rules of the painting pipeline.
type DomainConfig struct {
	// Batch constraints
	DefaultBatchQuantity int
	MaxBatchQuantity     int

	// Title constraints
	MaxTitleLength        int
	MaxInstructionsLength int

	// Reference constraints
	MaxReferenceBytes     int
	MaxReferencesPerImage int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		DefaultBatchQuantity:  5,
		MaxBatchQuantity:      20,
		MaxTitleLength:        200,
		MaxInstructionsLength: 4000,
		MaxReferenceBytes:     8 << 20,
		MaxReferencesPerImage: 16,
	}
}
