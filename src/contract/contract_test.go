package contract

import "testing"

func TestParseOption(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantOK  bool
	}{
		{"occ style", "NFLX 260417C00082000", "NFLX 260417C00082000", true},
		{"compact whole dollar", "NFLX260417C82", "NFLX 260417C00082000", true},
		{"compact fractional", "NFLX260417C82.5", "NFLX 260417C00082500", true},
		{"short position prefix", "-NFLX260417P82", "NFLX 260417P00082000", true},
		{"lowercase with spacing", "nflx  260417c82", "NFLX 260417C00082000", true},
		{"dotted ticker", "BRK.B 260417C00082000", "BRK.B 260417C00082000", true},
		{"plain equity", "NFLX", "", false},
		{"equity with digits", "BF.B", "", false},
		{"zero strike", "NFLX260417C0", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, ok := ParseOption(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ParseOption(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if ok && parts.Key() != tt.wantKey {
				t.Errorf("ParseOption(%q).Key() = %q, want %q", tt.raw, parts.Key(), tt.wantKey)
			}
		})
	}
}

func TestParseOptionStrike(t *testing.T) {
	parts, ok := ParseOption("NFLX260417C82.5")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if parts.Strike() != 82.5 {
		t.Errorf("Strike() = %v, want 82.5", parts.Strike())
	}
}

func TestCanonicalKeyCollapsesVariants(t *testing.T) {
	variants := []string{
		"NFLX 260417C00082000",
		"NFLX260417C82",
		"-NFLX 260417C00082000",
		"nflx260417c82",
	}
	want := "NFLX 260417C00082000"
	for _, v := range variants {
		if got := CanonicalKey(v); got != want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", v, got, want)
		}
	}

	if got := CanonicalKey(" nflx "); got != "NFLX" {
		t.Errorf("CanonicalKey equity = %q, want NFLX", got)
	}
}

func TestNormalizeAccount(t *testing.T) {
	aliases := map[string]string{
		"Individual": "TAXABLE",
		"Z12345":     "TAXABLE",
	}
	tests := []struct {
		label string
		want  string
	}{
		{"Roth IRA", "IRA ROTH"},
		{"ROTH CONTRIBUTORY IRA Z99", "IRA ROTH"},
		{"Individual Brokerage", "TAXABLE"},
		{"Account Z12345 ", "TAXABLE"},
		{"  Margin  ", "MARGIN"},
	}
	for _, tt := range tests {
		if got := NormalizeAccount(tt.label, aliases); got != tt.want {
			t.Errorf("NormalizeAccount(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestNormalizeAccountOverlappingAliasesIsStable(t *testing.T) {
	// Both substrings match; the longer, more specific alias must win on
	// every call, not whichever the map happens to yield first.
	aliases := map[string]string{
		"Ind":                "MARGIN",
		"Individual ...123":  "TAXABLE",
		"Individual Account": "JOINT",
	}
	for i := 0; i < 50; i++ {
		if got := NormalizeAccount("Individual ...123", aliases); got != "TAXABLE" {
			t.Fatalf("run %d: NormalizeAccount = %q, want TAXABLE", i, got)
		}
	}
	if got := NormalizeAccount("Indigo Fund", aliases); got != "MARGIN" {
		t.Errorf("NormalizeAccount(Indigo Fund) = %q, want MARGIN", got)
	}
}
