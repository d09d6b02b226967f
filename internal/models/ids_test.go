package models

import "testing"

func TestParseProcessorType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProcessorType
		wantErr bool
	}{
		{"and", ProcessorAnd, false},
		{"OR", ProcessorOr, false},
		{" resonance ", ProcessorResonance, false},
		{"threshold", ProcessorThreshold, false},
		{"custom", ProcessorCustom, false},
		{"majority", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProcessorType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProcessorType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseProcessorType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestProcessorTypeString(t *testing.T) {
	for p := ProcessorAnd; p <= ProcessorCustom; p++ {
		back, err := ParseProcessorType(p.String())
		if err != nil || back != p {
			t.Errorf("round trip of %d via %q gave %v, %v", p, p.String(), back, err)
		}
	}
	if ProcessorType(42).Valid() {
		t.Error("ProcessorType(42) should not be valid")
	}
}

func TestEdgeFlagHas(t *testing.T) {
	f := FlagBidirectional | FlagHyperedge
	if !f.Has(FlagBidirectional) {
		t.Error("expected bidirectional bit")
	}
	if f.Has(FlagTemporary) {
		t.Error("unexpected temporary bit")
	}
	if !f.Has(FlagBidirectional | FlagHyperedge) {
		t.Error("expected combined mask to match")
	}
}
