package models

import "time"

// FactRecord is a single stored fact with its metadata.
// Facts are never hard-deleted; IsRelevant=false marks a fact as superseded
// so that retrieval skips it while the record stays available for audit.
type FactRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Fact        string    `json:"fact"`
	Description string    `json:"description"`
	Examples    []string  `json:"examples,omitempty"`
	MessageUID  string    `json:"message_uid"`
	IsRelevant  bool      `json:"is_relevant"`
	Vector      []float32 `json:"vector,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContextItem is a retrieved fact together with its retrieval score.
// Score carries the fused rank score after reciprocal rank fusion, or the
// reranker relevance score once reranking has run.
type ContextItem struct {
	Record FactRecord `json:"record"`
	Score  float64    `json:"score"`
}
