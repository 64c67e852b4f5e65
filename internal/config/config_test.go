package config

import "testing"

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	c := DefaultConfig()
	cases := map[string]struct {
		got, want interface{}
	}{
		"capacity":     {c.Capacity, 65536},
		"depth":        {c.MaxDerivationDepth, 10},
		"weight":       {c.MaxDerivedTermWeight, 150},
		"commit cap":   {c.CommitQueueCapacity, 1 << 20},
		"task cap":     {c.TaskQueueCapacity, 1 << 20},
		"min workers":  {c.MinInferenceWorkers, 2},
		"decay":        {c.DerivedPriorityDecay, 0.95},
		"forward flag": {c.EnableForwardInstantiation, true},
		"rule flag":    {c.EnableRuleDerivation, true},
		"skolem flag":  {c.EnableSkolemization, true},
	}
	for name, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", name, tc.got, tc.want)
		}
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load("/nonexistent/path/noema.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Capacity != 65536 {
		t.Fatalf("got capacity %d, want default 65536", c.Capacity)
	}
}

func TestApplyEnvOverridesCapacity(t *testing.T) {
	t.Setenv("NOEMA_CAPACITY", "100")
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Capacity != 100 {
		t.Fatalf("got capacity %d, want 100 from env override", c.Capacity)
	}
}
