//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ArtifactReference identifies a versioned artifact before digest
// resolution. It is immutable and used as the cache lookup key.
//
// Canonical string form: ecosystem/namespace/name:version[-platform]
// e.g. registry.example/tools/protoc:31.1-linux-x86_64
//
// Two references that differ only in Platform are distinct artifacts.
type ArtifactReference struct {
	// Ecosystem is the package ecosystem or registry host, e.g. "npm"
	// or "registry.example".
	Ecosystem string `json:"ecosystem"`
	// Namespace groups artifacts within an ecosystem, e.g. "tools".
	// May contain slashes for nested namespaces.
	Namespace string `json:"namespace"`
	// Name is the artifact name. Required.
	Name string `json:"name"`
	// Version is the artifact version. Required.
	Version string `json:"version"`
	// Platform is an optional os-arch qualifier, e.g. "linux-x86_64".
	Platform string `json:"platform,omitempty"`
}

// Reference parse errors.
var (
	// ErrMissingName is returned when a reference string has no name segment.
	ErrMissingName = errors.New("artifact reference missing name")

	// ErrMissingVersion is returned when a reference string has no version.
	ErrMissingVersion = errors.New("artifact reference missing version")

	// ErrMalformedReference is returned for references that do not match
	// the ecosystem/namespace/name:version form at all.
	ErrMalformedReference = errors.New("malformed artifact reference")
)

// ParseReference parses the canonical string form of an artifact reference.
//
// The version and platform are split at the first hyphen whose suffix is
// itself hyphenated (the os-arch shape): "31.1-linux-x86_64" yields
// version "31.1" and platform "linux-x86_64", while "1.2.3-beta" keeps
// the full string as the version.
func ParseReference(s string) (ArtifactReference, error) {
	var ref ArtifactReference

	colon := strings.LastIndex(s, ":")
	if colon < 0 || colon == len(s)-1 {
		return ref, fmt.Errorf("%w: %q has no version", ErrMissingVersion, s)
	}

	path := s[:colon]
	version := s[colon+1:]

	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return ref, fmt.Errorf("%w: %q", ErrMalformedReference, s)
	}

	name := segments[len(segments)-1]
	if name == "" {
		return ref, fmt.Errorf("%w: %q", ErrMissingName, s)
	}

	ref.Ecosystem = segments[0]
	ref.Name = name
	if len(segments) > 2 {
		ref.Namespace = strings.Join(segments[1:len(segments)-1], "/")
	}

	ref.Version, ref.Platform = splitVersionPlatform(version)
	if ref.Version == "" {
		return ref, fmt.Errorf("%w: %q", ErrMissingVersion, s)
	}

	return ref, nil
}

// splitVersionPlatform separates a version[-platform] string.
// The platform suffix must contain a hyphen itself (os-arch), otherwise
// the hyphenated tail is treated as part of the version (pre-release tags).
func splitVersionPlatform(v string) (version, platform string) {
	idx := strings.Index(v, "-")
	if idx < 0 {
		return v, ""
	}
	suffix := v[idx+1:]
	if strings.Contains(suffix, "-") {
		return v[:idx], suffix
	}
	return v, ""
}

// String returns the canonical string form.
func (r ArtifactReference) String() string {
	var b strings.Builder
	b.WriteString(r.Ecosystem)
	b.WriteByte('/')
	if r.Namespace != "" {
		b.WriteString(r.Namespace)
		b.WriteByte('/')
	}
	b.WriteString(r.Name)
	b.WriteByte(':')
	b.WriteString(r.Version)
	if r.Platform != "" {
		b.WriteByte('-')
		b.WriteString(r.Platform)
	}
	return b.String()
}

// Key returns a stable identity string suitable for map keys and
// single-flight coalescing. Identical to String().
func (r ArtifactReference) Key() string {
	return r.String()
}

// Validate checks the structural requirements on a reference.
func (r ArtifactReference) Validate() error {
	if r.Name == "" {
		return ErrMissingName
	}
	if r.Version == "" {
		return ErrMissingVersion
	}
	if r.Ecosystem == "" {
		return fmt.Errorf("%w: missing ecosystem", ErrMalformedReference)
	}
	return nil
}
