package install

import (
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/depot/types"
)

// Sentinel errors for installation failures.
var (
	// ErrNotFound indicates the reference is unknown to a tier.
	ErrNotFound = errors.New("artifact not found")
	// ErrTierUnavailable indicates a tier's prerequisite tool or network
	// endpoint is absent on this host. Triggers skip, not failure.
	ErrTierUnavailable = errors.New("tier unavailable")
	// ErrVerificationFailed indicates the fetched bytes do not match the
	// expected digest. Terminal for the whole resolution attempt.
	ErrVerificationFailed = errors.New("digest verification failed")
)

// TierError records one tier's failure during a resolution attempt.
type TierError struct {
	Tier types.Tier
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s tier: %v", e.Tier, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

// AggregateError reports a resolution attempt where every tier was
// skipped or failed. It carries the per-tier error list.
type AggregateError struct {
	Reference types.ArtifactReference
	Tiers     []*TierError
}

func (e *AggregateError) Error() string {
	if len(e.Tiers) == 0 {
		return fmt.Sprintf("resolve %s: no installation tier available", e.Reference.String())
	}
	parts := make([]string, 0, len(e.Tiers))
	for _, te := range e.Tiers {
		parts = append(parts, te.Error())
	}
	return fmt.Sprintf("resolve %s: all tiers failed: %s", e.Reference.String(), strings.Join(parts, "; "))
}

// Unwrap exposes the per-tier errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Tiers))
	for _, te := range e.Tiers {
		errs = append(errs, te)
	}
	return errs
}

// VerificationError reports a digest mismatch on a fetched artifact.
type VerificationError struct {
	Reference types.ArtifactReference
	Tier      types.Tier
	Expected  string
	Actual    string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("resolve %s: %s tier returned digest %s, expected %s",
		e.Reference.String(), e.Tier, e.Actual, e.Expected)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}
