package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type AgentStatus string

const (
	AgentStatusDormant    AgentStatus = "dormant"
	AgentStatusActive     AgentStatus = "active"
	AgentStatusReflecting AgentStatus = "reflecting"
	AgentStatusDreaming   AgentStatus = "dreaming"
	AgentStatusArchived   AgentStatus = "archived"
)

func ValidAgentStatus(s string) bool {
	switch AgentStatus(s) {
	case AgentStatusDormant, AgentStatusActive, AgentStatusReflecting, AgentStatusDreaming, AgentStatusArchived:
		return true
	}
	return false
}

const (
	DefaultReflectionDepth     = 3
	MinReflectionDepth         = 1
	MaxReflectionDepth         = 5
	DefaultAutoReflectInterval = 3600
	MinAutoReflectInterval     = 60
	MaxHandleLength            = 50
	MaxNameLength              = 100
)

var handlePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Agent struct {
	ID                  uuid.UUID   `json:"id"`
	Name                string      `json:"name"`
	Handle              string      `json:"handle"`
	Status              AgentStatus `json:"status"`
	ReflectionDepth     int         `json:"reflection_depth"`
	AutoReflectInterval int         `json:"auto_reflect_interval"` // seconds
	LastActive          time.Time   `json:"last_active"`
	IdentityEmbedding   []float32   `json:"-"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// ApplyDefaults fills zero-valued operational parameters.
func (a *Agent) ApplyDefaults() {
	if a.Status == "" {
		a.Status = AgentStatusDormant
	}
	if a.ReflectionDepth == 0 {
		a.ReflectionDepth = DefaultReflectionDepth
	}
	if a.AutoReflectInterval == 0 {
		a.AutoReflectInterval = DefaultAutoReflectInterval
	}
}

func (a *Agent) Validate() error {
	if a.Name == "" || len(a.Name) > MaxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrValidation, MaxNameLength)
	}
	if err := ValidateHandle(a.Handle); err != nil {
		return err
	}
	if !ValidAgentStatus(string(a.Status)) {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, a.Status)
	}
	if err := ValidateReflectionDepth(a.ReflectionDepth); err != nil {
		return err
	}
	return ValidateAutoReflectInterval(a.AutoReflectInterval)
}

func ValidateHandle(h string) error {
	if h == "" || len(h) > MaxHandleLength || !handlePattern.MatchString(h) {
		return fmt.Errorf("%w: handle must be 1-%d characters of letters, digits or underscore", ErrValidation, MaxHandleLength)
	}
	return nil
}

func ValidateReflectionDepth(d int) error {
	if d < MinReflectionDepth || d > MaxReflectionDepth {
		return fmt.Errorf("%w: reflection_depth must be between %d and %d", ErrValidation, MinReflectionDepth, MaxReflectionDepth)
	}
	return nil
}

func ValidateAutoReflectInterval(seconds int) error {
	if seconds < MinAutoReflectInterval {
		return fmt.Errorf("%w: auto_reflect_interval must be at least %d seconds", ErrValidation, MinAutoReflectInterval)
	}
	return nil
}

// AgentFilter narrows agent listings. Zero values mean no constraint.
type AgentFilter struct {
	Status *AgentStatus
	Limit  int
	Offset int
}

// AgentUpdate carries the mutable agent fields. Handle is deliberately absent.
type AgentUpdate struct {
	Name                *string      `json:"name,omitempty"`
	Status              *AgentStatus `json:"status,omitempty"`
	ReflectionDepth     *int         `json:"reflection_depth,omitempty"`
	AutoReflectInterval *int         `json:"auto_reflect_interval,omitempty"`
}

type AgentSimilarity struct {
	Agent      Agent   `json:"agent"`
	Similarity float32 `json:"similarity"`
}
