package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func validAgent() Agent {
	a := Agent{Name: "Aria", Handle: "aria_01"}
	a.ApplyDefaults()
	return a
}

func TestAgentApplyDefaults(t *testing.T) {
	a := Agent{}
	a.ApplyDefaults()
	if a.Status != AgentStatusDormant {
		t.Errorf("status = %q, want dormant", a.Status)
	}
	if a.ReflectionDepth != 3 {
		t.Errorf("depth = %d, want 3", a.ReflectionDepth)
	}
	if a.AutoReflectInterval != 3600 {
		t.Errorf("interval = %d, want 3600", a.AutoReflectInterval)
	}
}

func TestAgentValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Agent)
		wantErr bool
	}{
		{"valid", func(a *Agent) {}, false},
		{"empty name", func(a *Agent) { a.Name = "" }, true},
		{"long name", func(a *Agent) { a.Name = strings.Repeat("n", 101) }, true},
		{"handle with dash", func(a *Agent) { a.Handle = "aria-01" }, true},
		{"handle with space", func(a *Agent) { a.Handle = "aria 01" }, true},
		{"empty handle", func(a *Agent) { a.Handle = "" }, true},
		{"long handle", func(a *Agent) { a.Handle = strings.Repeat("h", 51) }, true},
		{"depth zero", func(a *Agent) { a.ReflectionDepth = 0 }, true},
		{"depth six", func(a *Agent) { a.ReflectionDepth = 6 }, true},
		{"depth five", func(a *Agent) { a.ReflectionDepth = 5 }, false},
		{"interval 59", func(a *Agent) { a.AutoReflectInterval = 59 }, true},
		{"interval 60", func(a *Agent) { a.AutoReflectInterval = 60 }, false},
		{"unknown status", func(a *Agent) { a.Status = "sleeping" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAgent()
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestMemoryValidate(t *testing.T) {
	m := Memory{AgentID: uuid.New(), Content: "hello", Kind: MemoryKindInteraction, Tier: TierRAG, Importance: 0.5}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	m.Importance = 1.2
	if err := m.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("importance 1.2: got %v", err)
	}

	m.Importance = 0.5
	m.Kind = "chat"
	if err := m.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("kind chat: got %v", err)
	}
}

func TestValidateTokenBudget(t *testing.T) {
	for _, n := range []int{1000, 8000, 16000} {
		if err := ValidateTokenBudget(n); err != nil {
			t.Errorf("ValidateTokenBudget(%d) = %v", n, err)
		}
	}
	for _, n := range []int{0, 999, 16001} {
		if err := ValidateTokenBudget(n); !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateTokenBudget(%d) = %v, want ErrValidation", n, err)
		}
	}
}
