package eventinterp

import (
	"regexp"
	"strings"

	"github.com/opencode-ai/chatbridge/internal/model"
)

var modelVersionPattern = regexp.MustCompile(`(\d+-\d+)`)

// modelDisplayName maps a raw model id (e.g.
// "claude-opus-4-5-20260115") to a short display name ("Opus 4.5"),
// falling back to the raw id for families it doesn't recognize.
func modelDisplayName(modelID string) string {
	lower := strings.ToLower(modelID)
	var family string
	switch {
	case strings.Contains(lower, "opus"):
		family = "Opus"
	case strings.Contains(lower, "sonnet"):
		family = "Sonnet"
	case strings.Contains(lower, "haiku"):
		family = "Haiku"
	default:
		return modelID
	}
	if m := modelVersionPattern.FindStringSubmatch(modelID); m != nil {
		return family + " " + strings.ReplaceAll(m[1], "-", ".")
	}
	return family
}

// computeUsageStats implements spec.md §4.C8's `result` accounting rules.
func computeUsageStats(ev resultEvent) *model.UsageStats {
	stats := &model.UsageStats{
		TotalCostUSD: ev.TotalCostUSD,
		PerModel:     make(map[string]*model.PerModelUsage, len(ev.ModelUsage)),
	}

	var primaryID string
	var primaryCost float64
	first := true
	for id, mu := range ev.ModelUsage {
		pm := &model.PerModelUsage{
			ModelID:              id,
			DisplayName:          modelDisplayName(id),
			InputTokens:          mu.InputTokens,
			OutputTokens:         mu.OutputTokens,
			CacheReadInputTokens: mu.CacheReadTokens,
			CacheCreationTokens:  mu.CacheCreationTokens,
			CostUSD:              mu.CostUSD,
		}
		stats.PerModel[id] = pm
		stats.TotalTokensUsed += mu.InputTokens + mu.OutputTokens + mu.CacheReadTokens + mu.CacheCreationTokens
		if first || mu.CostUSD > primaryCost {
			primaryID = id
			primaryCost = mu.CostUSD
			stats.ContextWindowSize = mu.ContextWindowSize
			first = false
		}
	}
	stats.PrimaryModel = primaryID
	stats.ModelDisplayName = modelDisplayName(primaryID)

	switch {
	case ev.Usage != nil:
		stats.ContextTokens = ev.Usage.InputTokens + ev.Usage.CacheCreationInputTokens + ev.Usage.CacheReadInputTokens
	case primaryID != "":
		pm := stats.PerModel[primaryID]
		stats.ContextTokens = pm.InputTokens + pm.CacheReadInputTokens
	}

	return stats
}
