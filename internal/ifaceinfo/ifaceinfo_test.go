package ifaceinfo

import "testing"

func fixtureSet() map[string]Interface {
	return map[string]Interface{
		"wan0": {Name: "wan0", ScopeID: 2},
		"lan0": {Name: "lan0", ScopeID: 3},
		"lan1": {Name: "lan1", ScopeID: 4},
	}
}

func TestSelectWildcard(t *testing.T) {
	out, err := Select(fixtureSet(), []string{"*"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("len(out) = %d, want 3", len(out))
	}
}

func TestSelectByName(t *testing.T) {
	out, err := Select(fixtureSet(), []string{"lan0", "lan1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if _, ok := out[3]; !ok {
		t.Error("missing lan0 (scope 3) in result")
	}
	if _, ok := out[4]; !ok {
		t.Error("missing lan1 (scope 4) in result")
	}
}

func TestSelectUnknownInterface(t *testing.T) {
	if _, err := Select(fixtureSet(), []string{"ghost0"}); err == nil {
		t.Error("Select accepted an unknown interface name")
	}
}
