package registry

import (
	"sort"
	"strings"

	"github.com/router-for-me/promptdock/internal/catalog"
)

// Task is what the caller wants a model for.
type Task string

// Recommendation tasks.
const (
	TaskGenerate Task = "generate"
	TaskImprove  Task = "improve"
	TaskVision   Task = "vision"
	TaskResearch Task = "research"
)

// ParseTask validates a task name.
func ParseTask(value string) (Task, bool) {
	switch task := Task(strings.ToLower(strings.TrimSpace(value))); task {
	case TaskGenerate, TaskImprove, TaskVision, TaskResearch:
		return task, true
	default:
		return "", false
	}
}

// improveKeywords ranks models for instruction following; earlier entries score higher.
var improveKeywords = []string{
	"claude-3-5-sonnet",
	"claude-3-opus",
	"gpt-4o",
	"gpt-4-turbo",
	"gemini-1.5-pro",
	"claude",
	"gpt-4",
	"gemini-pro",
	"llama-3",
	"mixtral",
	"gpt-3.5",
}

func improveScore(originalID string) int {
	id := strings.ToLower(originalID)
	for i, keyword := range improveKeywords {
		if strings.Contains(id, keyword) {
			return len(improveKeywords) - i
		}
	}
	return 0
}

// Recommend filters and orders models for task. The input slice is never modified.
func Recommend(models []catalog.NormalizedModel, task Task) []catalog.NormalizedModel {
	available := make([]catalog.NormalizedModel, 0, len(models))
	for _, m := range models {
		if m.IsAvailable {
			available = append(available, m)
		}
	}

	switch task {
	case TaskGenerate:
		out := keep(available, func(m catalog.NormalizedModel) bool {
			return m.Has(catalog.CapText) && !catalog.IsReasoningOnly(m)
		})
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CostTier.Rank() < out[j].CostTier.Rank()
		})
		return out
	case TaskImprove:
		out := keep(available, func(m catalog.NormalizedModel) bool { return m.Has(catalog.CapText) })
		sort.SliceStable(out, func(i, j int) bool {
			return improveScore(out[i].OriginalID) > improveScore(out[j].OriginalID)
		})
		return out
	case TaskVision:
		return keep(available, func(m catalog.NormalizedModel) bool { return m.Has(catalog.CapVision) })
	case TaskResearch:
		search := keep(available, func(m catalog.NormalizedModel) bool { return m.Has(catalog.CapWebSearch) })
		reasoning := keep(available, func(m catalog.NormalizedModel) bool {
			return !m.Has(catalog.CapWebSearch) && m.Has(catalog.CapReasoning)
		})
		return append(search, reasoning...)
	default:
		return []catalog.NormalizedModel{}
	}
}

func keep(models []catalog.NormalizedModel, pred func(catalog.NormalizedModel) bool) []catalog.NormalizedModel {
	out := make([]catalog.NormalizedModel, 0, len(models))
	for _, m := range models {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}
