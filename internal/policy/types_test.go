package policy

import "testing"

func Test_Validate(t *testing.T) {
	t.Parallel()

	valid := blockSSHPolicy()
	if err := Validate(valid); err != nil {
		t.Errorf("Validate(%+v) = %v, want nil", valid, err)
	}

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"missing id", func(p *Policy) { p.ID = "" }},
		{"missing name", func(p *Policy) { p.Name = "" }},
		{"missing natural_language_rule", func(p *Policy) { p.NaturalLanguageRule = "" }},
		{"unknown cloud_platform", func(p *Policy) { p.CloudPlatform = "gcp" }},
		{"unknown severity", func(p *Policy) { p.Severity = "critical" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := blockSSHPolicy()
			tt.mutate(&p)
			if err := Validate(p); err == nil {
				t.Errorf("Validate(%+v) = nil, want an error", p)
			}
		})
	}
}
