package types

import (
	"errors"
	"testing"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ArtifactReference
	}{
		{
			name:  "full reference with platform",
			input: "registry.example/tools/protoc:31.1-linux-x86_64",
			want: ArtifactReference{
				Ecosystem: "registry.example",
				Namespace: "tools",
				Name:      "protoc",
				Version:   "31.1",
				Platform:  "linux-x86_64",
			},
		},
		{
			name:  "no platform",
			input: "npm/grpc-tools/protoc-gen-grpc:1.12.4",
			want: ArtifactReference{
				Ecosystem: "npm",
				Namespace: "grpc-tools",
				Name:      "protoc-gen-grpc",
				Version:   "1.12.4",
			},
		},
		{
			name:  "no namespace",
			input: "cargo/protoc-gen-prost:0.4.0",
			want: ArtifactReference{
				Ecosystem: "cargo",
				Name:      "protoc-gen-prost",
				Version:   "0.4.0",
			},
		},
		{
			name:  "nested namespace",
			input: "registry.example/team/proto/schemas:2.0.0",
			want: ArtifactReference{
				Ecosystem: "registry.example",
				Namespace: "team/proto",
				Name:      "schemas",
				Version:   "2.0.0",
			},
		},
		{
			name:  "prerelease tag stays in version",
			input: "npm/tools/tsc:5.0.0-beta",
			want: ArtifactReference{
				Ecosystem: "npm",
				Namespace: "tools",
				Name:      "tsc",
				Version:   "5.0.0-beta",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReference(tt.input)
			if err != nil {
				t.Fatalf("ParseReference(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseReference(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseReference_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"missing version", "registry.example/tools/protoc", ErrMissingVersion},
		{"empty version", "registry.example/tools/protoc:", ErrMissingVersion},
		{"missing name", "registry.example/tools/:1.0", ErrMissingName},
		{"bare name", "protoc:1.0", ErrMalformedReference},
		{"empty", "", ErrMissingVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReference(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseReference(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestReference_RoundTrip(t *testing.T) {
	inputs := []string{
		"registry.example/tools/protoc:31.1-linux-x86_64",
		"npm/grpc-tools/protoc-gen-grpc:1.12.4",
		"cargo/protoc-gen-prost:0.4.0",
	}

	for _, in := range inputs {
		ref, err := ParseReference(in)
		if err != nil {
			t.Fatalf("ParseReference(%q) error: %v", in, err)
		}
		if ref.String() != in {
			t.Errorf("round trip: got %q, want %q", ref.String(), in)
		}
	}
}

func TestReference_PlatformDistinct(t *testing.T) {
	a, _ := ParseReference("registry.example/tools/protoc:31.1-linux-x86_64")
	b, _ := ParseReference("registry.example/tools/protoc:31.1-darwin-arm64")

	if a.Key() == b.Key() {
		t.Error("references differing only in platform must have distinct keys")
	}
}

func TestParseCacheStrategy(t *testing.T) {
	if s, err := ParseCacheStrategy(""); err != nil || s != StrategyBalanced {
		t.Errorf("empty strategy = (%v, %v), want (balanced, nil)", s, err)
	}
	if _, err := ParseCacheStrategy("turbo"); err == nil {
		t.Error("unknown strategy should be rejected")
	}
	for _, s := range []string{"aggressive", "balanced", "conservative"} {
		if _, err := ParseCacheStrategy(s); err != nil {
			t.Errorf("ParseCacheStrategy(%q) error: %v", s, err)
		}
	}
}

func TestThresholdsFor_Ordering(t *testing.T) {
	agg := ThresholdsFor(StrategyAggressive)
	bal := ThresholdsFor(StrategyBalanced)
	con := ThresholdsFor(StrategyConservative)

	if !(agg.MaxCacheBytes > bal.MaxCacheBytes && bal.MaxCacheBytes > con.MaxCacheBytes) {
		t.Error("cache size should shrink from aggressive to conservative")
	}
	if !(agg.BundleScoreMin < bal.BundleScoreMin && bal.BundleScoreMin < con.BundleScoreMin) {
		t.Error("bundle score threshold should rise from aggressive to conservative")
	}
}
