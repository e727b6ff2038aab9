// Package mongodb implements storage interfaces using MongoDB.
//
// Fingerprint registration relies on the unique _id index for atomicity: a
// single InsertOne either claims the fingerprint or fails with a duplicate
// key error, so two concurrent arrivals can never both observe first-seen.
// Expiry uses a TTL index on expires_at; because the server-side TTL sweep
// is periodic, a duplicate-key hit against an already-expired document is
// resolved by deleting the stale document and retrying the insert once.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaymesh/smsgate/internal/storage"
	"github.com/relaymesh/smsgate/pkg/message"
)

// Store implements storage.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	ttl    storage.TTLPolicy

	fingerprints *mongo.Collection
	codes        *mongo.Collection
}

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

type fingerprintDoc struct {
	Fingerprint string       `bson:"_id"`
	Sender      string       `bson:"sender"`
	Type        message.Type `bson:"message_type"`
	ExpiresAt   time.Time    `bson:"expires_at"`
}

type codeDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// NewStore connects to MongoDB and prepares the collections and indexes.
func NewStore(ctx context.Context, cfg *Config, ttl storage.TTLPolicy) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	s := &Store{
		client:       client,
		db:           db,
		ttl:          ttl,
		fingerprints: db.Collection("fingerprints"),
		codes:        db.Collection("verification_codes"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// expireAfterSeconds of zero makes the server honor the per-document
	// expires_at value, which carries the type-dependent TTL.
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}

	if _, err := s.fingerprints.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		return fmt.Errorf("creating fingerprint TTL index: %w", err)
	}
	if _, err := s.codes.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		return fmt.Errorf("creating code TTL index: %w", err)
	}
	return nil
}

// TryRegister inserts the fingerprint document. A duplicate key error means
// a live registration already exists, unless that document has expired but
// not yet been swept, in which case the stale document is removed and the
// insert retried once.
func (s *Store) TryRegister(ctx context.Context, fingerprint, sender string, t message.Type) (bool, error) {
	now := time.Now()
	doc := fingerprintDoc{
		Fingerprint: fingerprint,
		Sender:      sender,
		Type:        t,
		ExpiresAt:   now.Add(s.ttl.ForType(t)),
	}

	_, err := s.fingerprints.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("%w: registering fingerprint: %v", storage.ErrUnavailable, err)
	}

	// Lazy sweep: only delete if the existing document has expired.
	res, err := s.fingerprints.DeleteOne(ctx, bson.M{
		"_id":        fingerprint,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return false, fmt.Errorf("%w: sweeping expired fingerprint: %v", storage.ErrUnavailable, err)
	}
	if res.DeletedCount == 0 {
		return false, nil
	}

	_, err = s.fingerprints.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent arrival won the retry.
		return false, nil
	}
	return false, fmt.Errorf("%w: registering fingerprint: %v", storage.ErrUnavailable, err)
}

// HealthCheck reports database connectivity.
func (s *Store) HealthCheck(ctx context.Context) bool {
	return s.client.Ping(ctx, nil) == nil
}

func (s *Store) PutCode(ctx context.Context, key, value string, ttl time.Duration) error {
	doc := codeDoc{Key: key, Value: value, ExpiresAt: time.Now().Add(ttl)}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.codes.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("%w: storing code: %v", storage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) GetCode(ctx context.Context, key string) (string, bool, error) {
	var doc codeDoc
	err := s.codes.FindOne(ctx, bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading code: %v", storage.ErrUnavailable, err)
	}
	return doc.Value, true, nil
}

func (s *Store) DeleteCode(ctx context.Context, key string) error {
	if _, err := s.codes.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("%w: deleting code: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
