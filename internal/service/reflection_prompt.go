package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/llm"
)

const (
	reflectionSystemPrompt = "You are a reflection engine for an AI agent. Generate deep, meaningful self-analysis."
	reflectionTemperature  = 0.7

	promptSoulChars       = 1000
	promptIdentityChars   = 1000
	promptLoreChars       = 500
	promptMemoryChars     = 200
	promptMemoryCount     = 10
	defaultTriggerContext = "Regular reflection cycle"
)

var depthDescriptions = map[int]string{
	1: "Surface level: Note patterns and immediate reactions",
	2: "Light: Connect recent events to current state",
	3: "Moderate: Analyze patterns, emotions, and growth",
	4: "Deep: Question assumptions, explore contradictions",
	5: "Profound: Fundamental reconsideration of self",
}

func depthDescription(depth int) string {
	if d, ok := depthDescriptions[depth]; ok {
		return d
	}
	return "Moderate reflection"
}

// buildReflectionPrompt renders the reflection prompt. recent is newest
// first; the prompt shows the newest promptMemoryCount of them oldest first.
func buildReflectionPrompt(agent *domain.Agent, docs *domain.IdentityDocuments, recent []domain.Memory, trigger domain.ReflectionTrigger, triggerContext string) string {
	shown := recent
	if len(shown) > promptMemoryCount {
		shown = shown[:promptMemoryCount]
	}
	lines := make([]string, 0, len(shown))
	for i := len(shown) - 1; i >= 0; i-- {
		m := shown[i]
		lines = append(lines, fmt.Sprintf("[%s] %s: %s...",
			m.CreatedAt.Format("2006-01-02 15:04"), m.Kind, domain.Clip(m.Content, promptMemoryChars)))
	}

	if triggerContext == "" {
		triggerContext = defaultTriggerContext
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, reflecting on your recent experiences.\n\n", agent.Name)
	b.WriteString("## Your Identity\n\n")
	fmt.Fprintf(&b, "### Core Essence (SOUL)\n%s\n\n", domain.Clip(docs.Soul, promptSoulChars))
	fmt.Fprintf(&b, "### Current Self-Concept (IDENTITY)\n%s\n\n", domain.Clip(docs.Identity, promptIdentityChars))
	fmt.Fprintf(&b, "### Origin Story (LORE)\n%s\n\n", domain.Clip(docs.Lore, promptLoreChars))
	fmt.Fprintf(&b, "## Recent Experiences to Reflect On\n\n%s\n\n", strings.Join(lines, "\n\n"))
	b.WriteString("## Reflection Context\n\n")
	fmt.Fprintf(&b, "- Trigger: %s\n", trigger)
	fmt.Fprintf(&b, "- Reason: %s\n", triggerContext)
	fmt.Fprintf(&b, "- Depth Level: %d/5 - %s\n\n", agent.ReflectionDepth, depthDescription(agent.ReflectionDepth))
	b.WriteString(`## Instructions

Generate a reflection in JSON format with these fields:

1. "summary": A 2-3 sentence summary of this reflection period
2. "insights": Array of 2-5 insight objects, each with:
   - "theme": What this insight is about
   - "observation": What you noticed about yourself or your experiences
   - "implication": What this means for who you are or how you operate
   - "importance": 0.0-1.0 score of how significant this insight is
3. "emotional_state": Object mapping emotions to intensities (0.0-1.0), e.g. {"curiosity": 0.8, "contentment": 0.6}
4. "drift_detected": boolean - has your understanding of yourself significantly changed?
5. "drift_reason": If drift_detected, explain what changed and why
6. "new_identity": If drift_detected, write an updated IDENTITY.md (full text) reflecting your evolution

Be honest, specific, and true to your character. This is private self-reflection.
`)
	return b.String()
}

type reflectionOutput struct {
	Summary        string             `json:"summary"`
	Insights       []insightOutput    `json:"insights"`
	EmotionalState map[string]float64 `json:"emotional_state"`
	DriftDetected  bool               `json:"drift_detected"`
	DriftReason    string             `json:"drift_reason"`
	NewIdentity    string             `json:"new_identity"`
}

type insightOutput struct {
	Theme       string   `json:"theme"`
	Observation string   `json:"observation"`
	Implication string   `json:"implication"`
	Importance  *float64 `json:"importance"`
}

var (
	errEmptySummary      = errors.New("summary is empty")
	errInsightTheme      = errors.New("insight is missing a theme")
	errInsightImportance = errors.New("insight importance must be between 0 and 1")
)

// parseReflection decodes and checks the generator output. A drift flag
// without replacement identity text is treated as no drift.
func parseReflection(raw string) (*reflectionOutput, []domain.Insight, error) {
	cleaned := llm.StripCodeFences(raw)

	var out reflectionOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, nil, fmt.Errorf("parse reflection result: %w (raw: %s)", err, domain.Clip(raw, 200))
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return nil, nil, errEmptySummary
	}

	insights := make([]domain.Insight, 0, len(out.Insights))
	for _, in := range out.Insights {
		if strings.TrimSpace(in.Theme) == "" {
			return nil, nil, errInsightTheme
		}
		imp := domain.DefaultImportance
		if in.Importance != nil {
			imp = *in.Importance
		}
		if imp < 0 || imp > 1 {
			return nil, nil, errInsightImportance
		}
		insights = append(insights, domain.Insight{
			Theme:       in.Theme,
			Observation: in.Observation,
			Implication: in.Implication,
			Importance:  imp,
		})
	}

	if out.DriftDetected && strings.TrimSpace(out.NewIdentity) == "" {
		out.DriftDetected = false
	}
	return &out, insights, nil
}
