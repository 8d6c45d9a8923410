package session

import (
	"context"
	"fmt"
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TranscriptRecorder stores answered questions in MongoDB.
type TranscriptRecorder struct {
	coll *mongo.Collection
}

func NewTranscriptRecorder(db *mongo.Database) *TranscriptRecorder {
	return &TranscriptRecorder{coll: db.Collection(config.TranscriptsCollection)}
}

func (r *TranscriptRecorder) Record(ctx context.Context, t *models.Transcript) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := r.coll.InsertOne(ctx, t)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		t.ID = id
	}
	return nil
}

// Recent returns the latest transcripts of a session, newest first.
func (r *TranscriptRecorder) Recent(ctx context.Context, sessionID string, limit int64) ([]models.Transcript, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.coll.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find transcripts: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Transcript
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode transcripts: %w", err)
	}
	return out, nil
}
