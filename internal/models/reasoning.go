package models

// ActionType is the kind of step the reasoning loop decided to take.
type ActionType string

const (
	ActionAnswer ActionType = "answer"
	ActionSearch ActionType = "search"
)

// ReasoningStep records one iteration of the reasoning loop. The trace is
// returned to the caller so the decision path stays inspectable.
type ReasoningStep struct {
	Iteration   int        `json:"iteration"`
	Thought     string     `json:"thought"`
	Action      ActionType `json:"action"`
	ToolName    string     `json:"tool_name,omitempty"`
	ToolInput   string     `json:"tool_input,omitempty"`
	Observation string     `json:"observation,omitempty"`
}

// QueryAnalysis is the structured breakdown of a user request that drives
// multi-query retrieval.
type QueryAnalysis struct {
	Intent           string   `json:"intent"`
	SearchQueries    []string `json:"search_queries"`
	KeyEntities      []string `json:"key_entities"`
	InformationNeeds []string `json:"information_needs"`
	RequiredTools    []string `json:"required_tools_or_methods"`
}
