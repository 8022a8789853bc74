package entities

import "testing"

func TestNormalizeMetadata(t *testing.T) {
	if NormalizeMetadata(nil) != nil {
		t.Error("nil map not preserved")
	}
	if NormalizeMetadata(map[string]interface{}{}) != nil {
		t.Error("empty map not collapsed to nil")
	}
	m := map[string]interface{}{"k": "v"}
	if got := NormalizeMetadata(m); len(got) != 1 || got["k"] != "v" {
		t.Errorf("populated map altered: %v", got)
	}
}
