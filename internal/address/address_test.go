package address

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "full street type with city suffix",
			input: "580 California Street, San Francisco, CA",
			want:  "580 california st san francisco ca",
		},
		{
			name:  "already abbreviated",
			input: "580 California St",
			want:  "580 california st",
		},
		{
			name:  "boulevard",
			input: "100 Sunset Boulevard",
			want:  "100 sunset blvd",
		},
		{
			name:  "periods stripped",
			input: "61 Chattanooga St.",
			want:  "61 chattanooga st",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStreetSegment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "city suffix removed",
			input: "61 Chattanooga St, San Francisco, CA",
			want:  "61 Chattanooga St",
		},
		{
			name:  "no comma passes through",
			input: "61 Chattanooga St",
			want:  "61 Chattanooga St",
		},
		{
			name:  "whitespace trimmed",
			input: "  61 Chattanooga St , SF",
			want:  "61 Chattanooga St",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StreetSegment(tt.input); got != tt.want {
				t.Errorf("StreetSegment(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name         string
		addr1, addr2 string
		want         bool
	}{
		{
			name:  "abbreviation vs full with suffix",
			addr1: "580 California St",
			addr2: "580 California Street, San Francisco, CA 94104",
			want:  true,
		},
		{
			name:  "street type variants",
			addr1: "61 Chattanooga Street",
			addr2: "61 Chattanooga St",
			want:  true,
		},
		{
			name:  "different street numbers",
			addr1: "580 California St",
			addr2: "582 California St",
			want:  false,
		},
		{
			name:  "different streets",
			addr1: "580 California St",
			addr2: "580 Valencia St",
			want:  false,
		},
		{
			name:  "intersection without number does not match numbered address",
			addr1: "Intersection Annie St, Stevenson St",
			addr2: "61 Chattanooga St",
			want:  false,
		},
		{
			name:  "identical",
			addr1: "61 Chattanooga St",
			addr2: "61 Chattanooga St",
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.addr1, tt.addr2); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.addr1, tt.addr2, got, tt.want)
			}
		})
	}
}
