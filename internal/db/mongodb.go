package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tmalik/banking-core/internal/models"
)

// Journal is the append-only record of completed money movements,
// backed by MongoDB. Entries are inserted once and never updated.
type Journal struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// creates a new Journal instance
func NewJournal(uri, dbName string) (*Journal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	collection := client.Database(dbName).Collection("transactions")

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "destination", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}

	_, err = collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &Journal{
		client:     client,
		collection: collection,
	}, nil
}

// closes the mongoDB connection
func (j *Journal) Close(ctx context.Context) error {
	return j.client.Disconnect(ctx)
}

// Append records one completed movement. It is called only after the
// balance mutation has durably committed; validation happens upstream.
func (j *Journal) Append(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.CreatedAt = time.Now().UTC()

	_, err := j.collection.InsertOne(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to append journal entry: %w", err)
	}

	return tx, nil
}

// GetByAccountNumber retrieves entries where the account is either the
// source or the destination, newest first.
func (j *Journal) GetByAccountNumber(ctx context.Context, accountNumber string) ([]*models.Transaction, error) {
	filter := bson.M{"$or": []bson.M{
		{"source": accountNumber},
		{"destination": accountNumber},
	}}

	return j.find(ctx, filter)
}

// ListAll retrieves every journal entry, newest first.
func (j *Journal) ListAll(ctx context.Context) ([]*models.Transaction, error) {
	return j.find(ctx, bson.M{})
}

func (j *Journal) find(ctx context.Context, filter bson.M) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := j.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find journal entries: %w", err)
	}
	defer cursor.Close(ctx)

	var transactions []*models.Transaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode journal entries: %w", err)
	}

	return transactions, nil
}
