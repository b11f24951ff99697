package eventinterp

import "encoding/json"

// Wire shapes for the agent CLI's stream-json event types. Only the fields
// the interpreter acts on are modeled; everything else is left to decode
// into the zero value and is ignored, matching the adapter's stance that it
// never fully interprets the stream (internal/agentcli.Event keeps the raw
// bytes around for exactly this reason).

type systemEvent struct {
	Subtype        string `json:"subtype"`
	Status         string `json:"status"`
	Error          string `json:"error"`
	CompactMetadata *struct {
		Trigger   string `json:"trigger"`
		PreTokens int64  `json:"pre_tokens"`
	} `json:"compact_metadata"`
}

type assistantEvent struct {
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type toolResultEvent struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name"`
	Output    string `json:"output"`
	IsError   bool   `json:"is_error"`
	Diff      *struct {
		Before string `json:"before"`
		After  string `json:"after"`
		Path   string `json:"path"`
	} `json:"diff"`
}

type resultEvent struct {
	TotalCostUSD float64                     `json:"total_cost_usd"`
	Usage        *usageBlock                 `json:"usage"`
	ModelUsage   map[string]modelUsageBlock  `json:"modelUsage"`
}

type usageBlock struct {
	InputTokens              int64 `json:"input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type modelUsageBlock struct {
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheReadTokens     int64   `json:"cacheReadInputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationInputTokens"`
	CostUSD             float64 `json:"costUSD"`
	ContextWindowSize   int64   `json:"contextWindowSize"`
}

// todoWriteInput is TodoWrite's tool_use input payload.
type todoWriteInput struct {
	Todos []struct {
		Content string `json:"content"`
		Status  string `json:"status"` // "pending" | "in_progress" | "completed"
	} `json:"todos"`
}

// exitPlanModeInput is ExitPlanMode's tool_use input payload.
type exitPlanModeInput struct {
	Plan string `json:"plan"`
}

// askUserQuestionInput is AskUserQuestion's tool_use input payload.
type askUserQuestionInput struct {
	Questions []struct {
		Header   string `json:"header"`
		Question string `json:"question"`
		Options  []struct {
			Label       string `json:"label"`
			Description string `json:"description"`
		} `json:"options"`
	} `json:"questions"`
}
