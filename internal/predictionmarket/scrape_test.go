package predictionmarket

import "testing"

func TestExtractOpenPriceReturnsLastInRangeOccurrence(t *testing.T) {
	t.Parallel()
	body := `...junk..."openPrice":77423.78,...other..."openPrice":77572.06425014541,...more..."openPrice":77490.31...trailer`
	v, ok := extractOpenPrice(body, defaultSanityRange)
	if !ok {
		t.Fatal("expected a match")
	}
	if v != 77490.31 {
		t.Fatalf("extractOpenPrice() = %v, want 77490.31", v)
	}
}

func TestExtractOpenPriceRejectsOutOfRangeValues(t *testing.T) {
	t.Parallel()
	body := `"openPrice":1.5,"openPrice":99.99,"openPrice":4321`
	if _, ok := extractOpenPrice(body, defaultSanityRange); ok {
		t.Fatal("expected no match when all values are below the sanity range")
	}
}

func TestExtractOpenPriceNoOccurrences(t *testing.T) {
	t.Parallel()
	if _, ok := extractOpenPrice("no price here", defaultSanityRange); ok {
		t.Fatal("expected no match on a body with no openPrice occurrences")
	}
}
