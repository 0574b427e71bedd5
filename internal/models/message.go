package models

import "time"

// Intent is the coarse classification of an incoming message.
type Intent string

const (
	// IntentLearn means the message states information to remember.
	IntentLearn Intent = "learn"
	// IntentSolve means the message asks a question to answer.
	IntentSolve Intent = "solve"
	// IntentBoth means the message states information and asks in one turn;
	// the learn path runs first so the solve path sees the new knowledge.
	IntentBoth Intent = "both"
)

// MessageRecord is the archived copy of an incoming message. Every request
// is persisted before processing so fact provenance can always be traced
// back to the message that introduced it.
type MessageRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UID       string    `json:"uid" gorm:"column:uid;uniqueIndex;size:64"`
	UserID    string    `json:"user_id" gorm:"column:user_id;index;size:64"`
	Text      string    `json:"text" gorm:"column:text;type:text"`
	Intent    string    `json:"intent" gorm:"column:intent;size:16"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName maps MessageRecord onto the messages table.
func (MessageRecord) TableName() string {
	return "messages"
}

// TextRequest is the body of POST /text.
type TextRequest struct {
	Text string `json:"text" binding:"required"`
	UID  string `json:"uid" binding:"required"`
}

// TextResponse is the reply for POST /text. References lists the facts the
// answer drew on; Reasoning is the step trace for solve requests.
type TextResponse struct {
	Response   string          `json:"response"`
	References []FactRecord    `json:"references"`
	Reasoning  []ReasoningStep `json:"reasoning,omitempty"`
}
