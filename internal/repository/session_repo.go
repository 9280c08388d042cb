package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"readingsurvey/internal/cache"
)

// sessionDoc is one tab's checkpoint values
type sessionDoc struct {
	TabID     string            `bson:"_id"`
	Values    map[string]string `bson:"values"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

type sessionRepo struct {
	collection *mongo.Collection
}

// NewMongoSessionStore stores checkpoints in the "sessions" collection, one
// document per tab.
func NewMongoSessionStore(db *mongo.Database) cache.SessionStore {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Get(ctx context.Context, tabID, key string) (string, bool, error) {
	var doc sessionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": tabID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Values[key]
	return v, ok, nil
}

func (r *sessionRepo) Set(ctx context.Context, tabID, key, value string) error {
	update := bson.M{
		"$set": bson.M{
			"values." + key: value,
			"updatedAt":     time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": tabID}, update, options.Update().SetUpsert(true))
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, tabID, key string) error {
	update := bson.M{
		"$unset": bson.M{"values." + key: ""},
		"$set":   bson.M{"updatedAt": time.Now()},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": tabID}, update)
	return err
}

func (r *sessionRepo) Clear(ctx context.Context, tabID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": tabID})
	return err
}
