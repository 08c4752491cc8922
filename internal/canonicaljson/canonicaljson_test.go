package canonicaljson

import "testing"

func TestMarshal_SortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}

	ca, err := Marshal(a)
	if err != nil {
		t.Fatalf("marshal a: %v", err)
	}
	cb, err := Marshal(b)
	if err != nil {
		t.Fatalf("marshal b: %v", err)
	}

	if string(ca) != string(cb) {
		t.Fatalf("expected identical canonical encodings, got %q and %q", ca, cb)
	}
	if string(ca) != `{"a":2,"b":1}` {
		t.Fatalf("unexpected encoding: %s", ca)
	}
}

func TestMarshal_NoInsignificantWhitespace(t *testing.T) {
	v := map[string]any{"numbers": []any{1, 2, 3}, "message": "hello"}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"message":"hello","numbers":[1,2,3]}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	v := []any{
		map[string]any{"numbers": []any{1, 2, 3}, "message": "hello"},
	}
	h1, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	h2, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(h1) != string(h2) {
		t.Fatalf("expected deterministic output")
	}
}

func TestCanonicalize_PreservesIntegerLiterals(t *testing.T) {
	got, err := Canonicalize([]byte(`{"v": 42}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"v":42}` {
		t.Fatalf("got %s", got)
	}
}

func TestMarshal_Nested(t *testing.T) {
	v := map[string]any{
		"z": map[string]any{"y": 1, "x": 2},
		"a": []any{3, 2, 1},
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":[3,2,1],"z":{"x":2,"y":1}}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
