package tbjson

import "testing"

func TestNumericValueNumericEncoding(t *testing.T) {
	obj, err := Parse([]byte(`{"tid": 100, "database": 7}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tid, err := NumericValue(obj, "tid")
	if err != nil {
		t.Fatalf("NumericValue(tid): %v", err)
	}
	if tid != 100 {
		t.Fatalf("tid = %d, want 100", tid)
	}
}

func TestNumericValueStringEncoding(t *testing.T) {
	obj, err := Parse([]byte(`{"tid": "100"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tid, err := NumericValue(obj, "tid")
	if err != nil {
		t.Fatalf("NumericValue(tid): %v", err)
	}
	if tid != 100 {
		t.Fatalf("tid = %d, want 100", tid)
	}
}

func TestNumericValueMissingAttribute(t *testing.T) {
	obj, _ := Parse([]byte(`{}`))
	if _, err := NumericValue(obj, "tid"); err == nil {
		t.Fatalf("expected error for missing attribute")
	}
}

func TestNumericValueLargeTick(t *testing.T) {
	// A tick near the top of the uint64 range must survive the round trip;
	// float64 decoding would silently lose precision here.
	const want = uint64(18446744073709551615 - 100)
	obj, err := Parse([]byte(`{"tick": 18446744073709551515}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := NumericValue(obj, "tick")
	if err != nil {
		t.Fatalf("NumericValue(tick): %v", err)
	}
	if got != want {
		t.Fatalf("tick = %d, want %d", got, want)
	}
}

func TestGetObjectNested(t *testing.T) {
	obj, err := Parse([]byte(`{"database": 7, "data": {"name": "c"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nested, ok := obj.GetObject("data")
	if !ok {
		t.Fatalf("expected nested data object")
	}
	name, ok := nested.GetString("name")
	if !ok || name != "c" {
		t.Fatalf("nested name = %q, %v", name, ok)
	}
}
