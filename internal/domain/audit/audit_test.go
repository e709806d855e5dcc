package audit

import (
	"strings"
	"testing"
)

func TestBuildQueryAddsFiltersInOrder(t *testing.T) {
	query, args := buildQuery("t1", Filter{Action: "payroll.run.status", EntityID: "r1"})
	if len(args) != 3 || args[0] != "t1" || args[1] != "payroll.run.status" || args[2] != "r1" {
		t.Fatalf("unexpected args %v", args)
	}
	if !strings.Contains(query, "action = $2") || !strings.Contains(query, "entity_id = $3") {
		t.Fatalf("unexpected query %q", query)
	}
	if strings.Contains(query, "entity_type = $") {
		t.Fatalf("did not expect entity type filter in %q", query)
	}
}

func TestMarshalState(t *testing.T) {
	raw, err := marshalState(nil)
	if err != nil || raw != nil {
		t.Fatalf("expected nil payload, got %q, %v", raw, err)
	}
	raw, err = marshalState(map[string]string{"status": "APPROVED"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"status":"APPROVED"}` {
		t.Fatalf("unexpected payload %s", raw)
	}
}
