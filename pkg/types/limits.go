package types //nolint:revive // package name is intentional

import "fmt"

// Limits holds a provider+model quota set. RPM and TPM are per trailing
// minute; RPD is per UTC day, 0 meaning unlimited. Limits are immutable once
// handed to a tracker.
type Limits struct {
	RPM int `yaml:"rpm" json:"rpm"`
	TPM int `yaml:"tpm" json:"tpm"`
	RPD int `yaml:"rpd,omitempty" json:"rpd,omitempty"`
}

// Validate checks the quota values.
func (l Limits) Validate() error {
	if l.RPM <= 0 {
		return fmt.Errorf("rpm must be positive, got %d", l.RPM)
	}
	if l.TPM <= 0 {
		return fmt.Errorf("tpm must be positive, got %d", l.TPM)
	}
	if l.RPD < 0 {
		return fmt.Errorf("rpd must be non-negative, got %d", l.RPD)
	}
	return nil
}
