package models

// ConflictType classifies the relation between an incoming fact and a stored one.
type ConflictType string

const (
	// ConflictDirect means the two statements cannot both hold.
	ConflictDirect ConflictType = "direct"
	// ConflictTemporal means the new statement supersedes an older state;
	// this is a normal update, not a conflict.
	ConflictTemporal ConflictType = "temporal"
	// ConflictContextual means the statements apply in different contexts
	// and can coexist.
	ConflictContextual ConflictType = "contextual"
	// ConflictDegree means the statements differ only in intensity or amount.
	ConflictDegree ConflictType = "degree"
	// ConflictPartial means the statements overlap and genuinely disagree
	// on the overlapping part.
	ConflictPartial ConflictType = "partial"
	// ConflictNone means no conflict was found.
	ConflictNone ConflictType = "none"
)

// IsBlocking reports whether this conflict type requires resolution before
// the new fact can be stored.
func (t ConflictType) IsBlocking() bool {
	return t == ConflictDirect || t == ConflictPartial
}

// Conflict describes a detected disagreement between a new fact and an
// existing stored fact.
type Conflict struct {
	NewFact     string       `json:"new_fact"`
	Existing    FactRecord   `json:"existing"`
	Type        ConflictType `json:"type"`
	Confidence  float64      `json:"confidence"`
	Explanation string       `json:"explanation,omitempty"`
}

// PendingResolution is an unresolved conflict waiting for the user's answer.
// Only the conflicted fact is suspended; unrelated facts from the same
// message are stored normally.
type PendingResolution struct {
	UserID     string   `json:"user_id"`
	MessageUID string   `json:"message_uid"`
	Conflict   Conflict `json:"conflict"`
}
