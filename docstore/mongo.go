package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/logging"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database. Subscriptions are built
// on change streams: every change event triggers a re-query of the full
// filtered result set, which is pushed to the subscriber as one snapshot.
type MongoStore struct {
	uri    string
	dbName string

	mu     sync.RWMutex
	client *mongo.Client
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &MongoStore{uri: uri, dbName: dbName, client: client}, nil
}

func connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("database connection for MongoDB failed: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB connection ping error: %v", err)
	}
	return client, nil
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client.Database(s.dbName).Collection(name)
}

// Database exposes the raw database handle for components that sit outside
// the document-store contract, such as the GridFS blob bucket.
func (s *MongoStore) Database() *mongo.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client.Database(s.dbName)
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Disconnect(ctx)
}

// RefreshConnection tears down the current client and rebuilds it from the
// stored configuration. Active subscriptions keep their change streams; the
// caller is expected to resubscribe after a successful refresh.
func (s *MongoStore) RefreshConnection(ctx context.Context) bool {
	fresh, err := connect(ctx, s.uri)
	if err != nil {
		logging.Logger.Errorf("Event ID: DB_REFRESH_FAILED, Description: Failed to rebuild MongoDB client: %v", err)
		return false
	}

	s.mu.Lock()
	old := s.client
	s.client = fresh
	s.mu.Unlock()

	if err := old.Disconnect(ctx); err != nil {
		logging.Logger.Warnf("Event ID: DB_REFRESH_DISCONNECT, Description: Failed to disconnect stale MongoDB client: %v", err)
	}
	logging.Logger.Info("Event ID: DB_REFRESHED, Description: MongoDB client rebuilt from current configuration")
	return true
}

func (s *MongoStore) Get(ctx context.Context, collection, id string, out interface{}) error {
	err := s.collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s/%s: %v", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
		return fmt.Errorf("failed to write document %s/%s: %v", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	result, err := s.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(patch)})
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %v", collection, id, err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %v", collection, id, err)
	}
	if result.DeletedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, out interface{}) error {
	opts := options.Find()
	if order != nil {
		direction := 1
		if order.Desc {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: order.Field, Value: direction}})
	}

	cursor, err := s.collection(collection).Find(ctx, filtersToBSON(filters), opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %v", collection, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s query results: %v", collection, err)
	}
	return nil
}

// Subscribe opens a change stream on the collection and re-runs the query on
// every event. The initial snapshot is pushed before any change arrives.
func (s *MongoStore) Subscribe(ctx context.Context, collection string, filters []Filter, order *Order, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := s.collection(collection).Watch(subCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream on %s: %v", collection, err)
	}

	push := func() {
		var docs []bson.Raw
		if err := s.Query(subCtx, collection, filters, order, &docs); err != nil {
			if subCtx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(docs)
	}

	push()

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(subCtx) {
			push()
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			logging.Logger.Errorf("Event ID: SUBSCRIPTION_STREAM_ERROR, Description: Change stream on %s failed: %v", collection, err)
			if onError != nil {
				onError(err)
			}
		}
	}()

	return cancel, nil
}

func filtersToBSON(filters []Filter) bson.M {
	query := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case "!=":
			query[f.Field] = bson.M{"$ne": f.Value}
		case "array-contains":
			query[f.Field] = bson.M{"$elemMatch": bson.M{"$eq": f.Value}}
		default:
			query[f.Field] = f.Value
		}
	}
	return query
}
