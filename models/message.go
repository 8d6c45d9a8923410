package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transcript is the stored record of one answered (or failed) question.
type Transcript struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Model     string             `bson:"model" json:"model"`
	Question  string             `bson:"question" json:"question"`
	Reply     string             `bson:"reply" json:"reply"`
	Sources   []Source           `bson:"sources,omitempty" json:"sources,omitempty"`
	Failed    bool               `bson:"failed" json:"failed"`
	LatencyMS int64              `bson:"latency_ms" json:"latency_ms"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
