package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Mongo implements Store on top of a MongoDB database. Change
// notification is built on collection change streams: every stream
// event re-runs the registered query, so listeners always receive full
// current result sets, never diffs.
type Mongo struct {
	db     *mongo.Database
	logger *zap.Logger
}

func NewMongo(db *mongo.Database, logger *zap.Logger) *Mongo {
	return &Mongo{db: db, logger: logger}
}

func OpenConnection(uri string, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}

	return client.Database(database), nil
}

// Unavailable reports whether err is a transport-level store failure a
// caller may want to surface as such rather than as a domain error.
func Unavailable(err error) bool {
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

func (s *Mongo) Listen(ctx context.Context, q *Query, fn ListenFunc) (CancelFunc, error) {
	coll := s.db.Collection(q.collection)

	stream, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, fmt.Errorf("open change stream on %s: %w", q.collection, err)
	}

	wctx, cancel := context.WithCancel(ctx)

	go func() {
		defer stream.Close(context.Background())

		// Initial snapshot goes out before any external change arrives.
		snap, err := s.RunQuery(wctx, q)
		if err != nil {
			if wctx.Err() == nil {
				fn(nil, err)
			}
			return
		}
		fn(snap, nil)

		for stream.Next(wctx) {
			snap, err := s.RunQuery(wctx, q)
			if err != nil {
				if wctx.Err() == nil {
					fn(nil, err)
				}
				return
			}
			fn(snap, nil)
		}

		if err := stream.Err(); err != nil && wctx.Err() == nil {
			s.logger.Warn("change stream terminated",
				zap.String("collection", q.collection),
				zap.Error(err),
			)
			fn(nil, err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

func (s *Mongo) RunQuery(ctx context.Context, q *Query) (Snapshot, error) {
	coll := s.db.Collection(q.collection)

	opts := options.Find().SetSort(q.sortSpec())
	if q.limit > 0 {
		opts.SetLimit(q.limit)
	}

	cur, err := coll.Find(ctx, q.filterSpec(), opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.collection, err)
	}
	defer cur.Close(ctx)

	var snap Snapshot
	for cur.Next(ctx) {
		// cur.Current is reused between iterations, copy it out.
		raw := bson.Raw(append([]byte(nil), cur.Current...))
		snap = append(snap, RawDoc{ID: rawID(raw), Data: raw})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.collection, err)
	}
	return snap, nil
}

func (s *Mongo) WriteFields(ctx context.Context, ref DocRef, fields map[string]any) error {
	coll := s.db.Collection(ref.Collection)
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	_, err := coll.UpdateOne(ctx, bson.M{"_id": docID(ref.ID)}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("write fields %s/%s: %w", ref.Collection, ref.ID, err)
	}
	return nil
}

func (s *Mongo) WriteDocument(ctx context.Context, ref DocRef, doc any) error {
	coll := s.db.Collection(ref.Collection)
	opts := options.Replace().SetUpsert(true)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": docID(ref.ID)}, doc, opts)
	if err != nil {
		return fmt.Errorf("write document %s/%s: %w", ref.Collection, ref.ID, err)
	}
	return nil
}

func (s *Mongo) CreateIfAbsent(ctx context.Context, ref DocRef, doc any) (bool, error) {
	coll := s.db.Collection(ref.Collection)
	opts := options.Update().SetUpsert(true)
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": docID(ref.ID)},
		bson.M{"$setOnInsert": doc},
		opts,
	)
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", ref.Collection, ref.ID, err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *Mongo) TransactionalIncrement(ctx context.Context, ref DocRef, field string, delta int64) error {
	coll := s.db.Collection(ref.Collection)
	_, err := coll.UpdateOne(ctx,
		bson.M{"_id": docID(ref.ID)},
		bson.M{"$inc": bson.M{field: delta}},
	)
	if err != nil {
		return fmt.Errorf("increment %s/%s %s: %w", ref.Collection, ref.ID, field, err)
	}
	return nil
}

// filterSpec translates the query conditions, including the exclusive
// compound start-after cursor, into a MongoDB filter document.
func (q *Query) filterSpec() bson.M {
	base := bson.M{}
	for _, c := range q.conditions {
		value := c.value
		if c.field == "_id" {
			// External ids are strings; stored _id may be an ObjectID.
			if s, ok := value.(string); ok {
				value = docID(s)
			}
		}
		switch c.op {
		case opEq, opArrayContains:
			// Mongo equality on an array field matches elements, which
			// is exactly array-contains.
			base[c.field] = value
		case opNe:
			mergeOp(base, c.field, "$ne", value)
		case opLt:
			mergeOp(base, c.field, "$lt", value)
		case opLte:
			mergeOp(base, c.field, "$lte", value)
		case opGt:
			mergeOp(base, c.field, "$gt", value)
		case opGte:
			mergeOp(base, c.field, "$gte", value)
		}
	}

	if q.startAfter == nil {
		return base
	}

	// Strictly after (orderValue, id): either past the order value, or
	// at the same order value and past the id. A bare order-value
	// comparison would silently drop siblings sharing the boundary's
	// timestamp.
	cmp := "$gt"
	if q.orderDir == Descending {
		cmp = "$lt"
	}
	after := bson.M{"$or": bson.A{
		bson.M{q.orderField: bson.M{cmp: q.startAfter.orderValue}},
		bson.M{
			q.orderField: q.startAfter.orderValue,
			"_id":        bson.M{cmp: docID(q.startAfter.id)},
		},
	}}
	if len(base) == 0 {
		return after
	}
	return bson.M{"$and": bson.A{base, after}}
}

// sortSpec returns the sort document, with _id as the implicit
// tie-break in the same direction as the primary field.
func (q *Query) sortSpec() bson.D {
	if q.orderField == "" {
		return bson.D{{Key: "_id", Value: int(q.orderDir)}}
	}
	return bson.D{
		{Key: q.orderField, Value: int(q.orderDir)},
		{Key: "_id", Value: int(q.orderDir)},
	}
}

func mergeOp(filter bson.M, field, op string, value any) {
	if existing, ok := filter[field].(bson.M); ok {
		existing[op] = value
		return
	}
	filter[field] = bson.M{op: value}
}

// docID maps an external id onto the _id value stored in Mongo: hex
// ObjectIDs round-trip to primitive.ObjectID, anything else stays a
// plain string key.
func docID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func rawID(doc bson.Raw) string {
	v, err := doc.LookupErr("_id")
	if err != nil {
		return ""
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return v.String()
}
