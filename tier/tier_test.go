package tier

import "testing"

func TestTierOrdering(t *testing.T) {
	if !(Base < Enhanced && Enhanced < Advanced && Advanced < Full) {
		t.Fatal("expected Base < Enhanced < Advanced < Full")
	}
}

func TestTierString(t *testing.T) {
	cases := map[Tier]string{
		Base:     "base",
		Enhanced: "enhanced",
		Advanced: "advanced",
		Full:     "full",
	}
	for tier, want := range cases {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", tier, got, want)
		}
	}
}

func TestMaxDocumentsAndChunks(t *testing.T) {
	cases := []struct {
		tier         Tier
		maxDocuments int
		maxChunks    int
	}{
		{Base, 1_000, 10_000},
		{Enhanced, 5_000, 50_000},
		{Advanced, 20_000, 200_000},
		{Full, 100_000, 1_000_000},
	}
	for _, c := range cases {
		if got := c.tier.MaxDocuments(); got != c.maxDocuments {
			t.Errorf("%s.MaxDocuments() = %d, want %d", c.tier, got, c.maxDocuments)
		}
		if got := c.tier.MaxChunks(); got != c.maxChunks {
			t.Errorf("%s.MaxChunks() = %d, want %d", c.tier, got, c.maxChunks)
		}
	}
}

func TestHybridEligible(t *testing.T) {
	if Base.HybridEligible() {
		t.Error("Base should not be hybrid-eligible")
	}
	for _, tr := range []Tier{Enhanced, Advanced, Full} {
		if !tr.HybridEligible() {
			t.Errorf("%s should be hybrid-eligible", tr)
		}
	}
}

func TestFromEnvelopeJetson(t *testing.T) {
	got := FromEnvelope(Envelope{TotalRAMBytes: 8 << 30, CPUCores: 6, IsJetson: true})
	if got != Enhanced {
		t.Errorf("jetson envelope: got %s, want %s", got, Enhanced)
	}
}

func TestFromEnvelopeFull(t *testing.T) {
	got := FromEnvelope(Envelope{TotalRAMBytes: 64 << 30, CPUCores: 16, HasGPU: true})
	if got != Full {
		t.Errorf("high-end envelope: got %s, want %s", got, Full)
	}
}

func TestFromEnvelopeAdvanced(t *testing.T) {
	got := FromEnvelope(Envelope{TotalRAMBytes: 16 << 30, CPUCores: 4, HasGPU: true})
	if got != Advanced {
		t.Errorf("mid envelope: got %s, want %s", got, Advanced)
	}
}

func TestFromEnvelopeEnhancedNoGPU(t *testing.T) {
	got := FromEnvelope(Envelope{TotalRAMBytes: 8 << 30, CPUCores: 4})
	if got != Enhanced {
		t.Errorf("cpu-only envelope: got %s, want %s", got, Enhanced)
	}
}

func TestFromEnvelopeBaseFallback(t *testing.T) {
	got := FromEnvelope(Envelope{})
	if got != Base {
		t.Errorf("empty envelope: got %s, want %s", got, Base)
	}
}

func TestDetectReturnsValidTier(t *testing.T) {
	got := Detect()
	if got < Base || got > Full {
		t.Fatalf("Detect() returned out-of-range tier: %d", got)
	}
}
