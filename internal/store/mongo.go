package store

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/sells-group/crc-cores/internal/model"
)

// MongoStore implements Store on MongoDB, the document store the source
// collections live in.
type MongoStore struct {
	db        *mongo.Database
	batchSize int
	closeFn   func(ctx context.Context) error
}

// MongoOptions tunes the Mongo store.
type MongoOptions struct {
	// InsertBatchSize is the number of documents per InsertMany while
	// staging the output. Default: 1000.
	InsertBatchSize int
}

// NewMongo connects to uri and returns a store bound to the named database.
func NewMongo(ctx context.Context, uri, database string, opts MongoOptions) (*MongoStore, error) {
	if database == "" {
		return nil, eris.New("mongo: no database configured")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, eris.Wrap(err, "mongo: ping")
	}
	s := NewMongoFromDatabase(client.Database(database), opts)
	s.closeFn = client.Disconnect
	return s, nil
}

// NewMongoFromDatabase wraps an existing database handle. The caller owns
// the client.
func NewMongoFromDatabase(db *mongo.Database, opts MongoOptions) *MongoStore {
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = 1000
	}
	return &MongoStore{db: db, batchSize: opts.InsertBatchSize}
}

func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(runsTable).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	})
	return eris.Wrap(err, "mongo: migrate")
}

func (s *MongoStore) Close() error {
	if s.closeFn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.closeFn(ctx)
}

// collectionExists reports whether name is a collection of the database.
func (s *MongoStore) collectionExists(ctx context.Context, name string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, eris.Wrapf(err, "mongo: list collections %s", name)
	}
	return slices.Contains(names, name), nil
}

// LoadCollection reads every document of a collection in _id order so that
// "first" is stable across runs. A collection that does not exist is
// ErrNotFound; find alone would return an empty cursor for it.
func (s *MongoStore) LoadCollection(ctx context.Context, name string) ([]model.Doc, error) {
	ok, err := s.collectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "mongo: collection %s", name)
	}

	cur, err := s.db.Collection(name).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetAllowDiskUse(true),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: find %s", name)
	}
	defer cur.Close(ctx) //nolint:errcheck

	var docs []model.Doc
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, eris.Wrapf(err, "mongo: decode %s", name)
		}
		docs = append(docs, model.Doc(normalizeBSON(raw).(map[string]any)))
	}
	return docs, eris.Wrapf(cur.Err(), "mongo: iterate %s", name)
}

// InsertDocs appends documents to a source collection in ordered batches.
// With no documents it only makes sure the collection exists; InsertMany
// creates it otherwise.
func (s *MongoStore) InsertDocs(ctx context.Context, name string, docs []model.Doc) error {
	if len(docs) == 0 {
		return s.ensureCollection(ctx, name)
	}

	coll := s.db.Collection(name)
	for start := 0; start < len(docs); start += s.batchSize {
		end := min(start+s.batchSize, len(docs))
		batch := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, orderedValue(map[string]any(docs[i])))
		}
		if _, err := coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true)); err != nil {
			return eris.Wrapf(err, "mongo: insert %s batch at %d", name, start)
		}
	}
	return nil
}

func (s *MongoStore) ensureCollection(ctx context.Context, name string) error {
	ok, err := s.collectionExists(ctx, name)
	if err != nil || ok {
		return err
	}
	if err := s.db.CreateCollection(ctx, name); err != nil && !isNamespaceExists(err) {
		return eris.Wrapf(err, "mongo: create %s", name)
	}
	return nil
}

// isNamespaceExists matches a create that lost a race with another writer.
func isNamespaceExists(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && (ce.Code == 48 || ce.Name == "NamespaceExists")
}

// ReplaceOutput writes records to a fresh staging collection, indexes it,
// then renames it over the destination with dropTarget. The staging
// collection is dropped if anything fails before the rename.
func (s *MongoStore) ReplaceOutput(ctx context.Context, name string, records []model.OutputRecord) (n int64, err error) {
	log := zap.L().With(zap.String("component", "store.mongo"))
	staging := name + "_staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	coll := s.db.Collection(staging)

	defer func() {
		if err == nil {
			return
		}
		if dropErr := coll.Drop(context.WithoutCancel(ctx)); dropErr != nil {
			log.Warn("failed to drop staging collection", zap.String("collection", staging), zap.Error(dropErr))
		}
	}()

	if err := s.db.CreateCollection(ctx, staging); err != nil {
		return 0, eris.Wrapf(err, "mongo: create %s", staging)
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, outputDoc(&records[i]))
		}
		res, err := coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
		if err != nil {
			return 0, eris.Wrapf(err, "mongo: stage %s batch at %d", name, start)
		}
		n += int64(len(res.InsertedIDs))
	}

	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: model.FieldLibNum, Value: 1}},
	}); err != nil {
		return 0, eris.Wrapf(err, "mongo: index %s", staging)
	}

	rename := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + staging},
		{Key: "to", Value: s.db.Name() + "." + name},
		{Key: "dropTarget", Value: true},
	}
	if err := s.db.Client().Database("admin").RunCommand(ctx, rename).Err(); err != nil {
		return 0, eris.Wrapf(err, "mongo: rename %s to %s", staging, name)
	}

	log.Info("output replaced", zap.String("collection", name), zap.Int64("documents", n))
	return n, nil
}

// libNumCandidates returns the values a path parameter may be stored as.
func libNumCandidates(libNum string) bson.A {
	vals := bson.A{libNum}
	if i, err := strconv.ParseInt(libNum, 10, 64); err == nil {
		vals = append(vals, i)
	} else if f, err := strconv.ParseFloat(libNum, 64); err == nil {
		vals = append(vals, f)
	}
	return vals
}

func (s *MongoStore) GetOutput(ctx context.Context, name string, libNum string) (*model.OutputRecord, error) {
	filter := bson.D{{Key: model.FieldLibNum, Value: bson.D{{Key: "$in", Value: libNumCandidates(libNum)}}}}

	var raw bson.M
	err := s.db.Collection(name).FindOne(ctx, filter).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "mongo: get %s %s", name, libNum)
	}

	r := model.RecordFromDoc(model.Doc(normalizeBSON(raw).(map[string]any)))
	return &r, nil
}

func (s *MongoStore) ListOutput(ctx context.Context, name string, limit, offset int) ([]model.OutputRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(defaultLimit(limit))).
		SetSkip(int64(max(offset, 0)))

	cur, err := s.db.Collection(name).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: list %s", name)
	}
	defer cur.Close(ctx) //nolint:errcheck

	var out []model.OutputRecord
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, eris.Wrapf(err, "mongo: decode %s", name)
		}
		out = append(out, model.RecordFromDoc(model.Doc(normalizeBSON(raw).(map[string]any))))
	}
	return out, eris.Wrapf(cur.Err(), "mongo: iterate %s", name)
}

func (s *MongoStore) StartRun(ctx context.Context) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, err := s.db.Collection(runsTable).InsertOne(ctx, run); err != nil {
		return nil, eris.Wrap(err, "mongo: start run")
	}
	return run, nil
}

func (s *MongoStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error {
	set := bson.D{
		{Key: "status", Value: string(status)},
		{Key: "completed_at", Value: time.Now().UTC()},
	}
	if result != nil {
		set = append(set, bson.E{Key: "result", Value: result})
	}
	if errMsg != "" {
		set = append(set, bson.E{Key: "error", Value: errMsg})
	}

	res, err := s.db.Collection(runsTable).UpdateByID(ctx, runID, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return eris.Wrapf(err, "mongo: finish run %s", runID)
	}
	if res.MatchedCount == 0 {
		return eris.Wrapf(ErrNotFound, "mongo: finish run %s", runID)
	}
	return nil
}

func (s *MongoStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.db.Collection(runsTable).FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "mongo: get run %s", runID)
	}
	return &r, nil
}

func (s *MongoStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	q := bson.D{}
	if filter.Status != "" {
		q = append(q, bson.E{Key: "status", Value: string(filter.Status)})
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(defaultLimit(filter.Limit))).
		SetSkip(int64(max(filter.Offset, 0)))

	cur, err := s.db.Collection(runsTable).Find(ctx, q, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list runs")
	}
	var runs []model.Run
	if err := cur.All(ctx, &runs); err != nil {
		return nil, eris.Wrap(err, "mongo: decode runs")
	}
	return runs, nil
}

// normalizeBSON converts driver-specific values into the plain Go values
// the pipeline works on.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case int32:
		return int64(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return f
		}
		return t.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.Binary:
		return t.Data
	case primitive.Symbol:
		return string(t)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = normalizeBSON(val)
	}
	return out
}

func normalizeSlice(a []any) []any {
	out := make([]any, len(a))
	for i, val := range a {
		out[i] = normalizeBSON(val)
	}
	return out
}

// outputDoc lays a record out as an ordered document: descriptive fields,
// intervals, then the enrichment fields that were found. Nested documents
// are key-sorted so equal records always encode to the same bytes.
func outputDoc(r *model.OutputRecord) bson.D {
	d := make(bson.D, 0, len(model.WellFields)+1+len(model.EnrichmentFields))
	for _, f := range model.WellFields {
		v, _ := r.Get(f)
		d = append(d, bson.E{Key: f, Value: orderedValue(v)})
	}

	intervals := make(bson.A, 0, len(r.Intervals))
	for _, iv := range r.Intervals {
		intervals = append(intervals, bson.D{
			{Key: model.FieldFormation, Value: orderedValue(iv.Formation)},
			{Key: model.FieldAge, Value: orderedValue(iv.Age)},
			{Key: model.FieldMinDepth, Value: orderedValue(iv.MinDepth)},
			{Key: model.FieldMaxDepth, Value: orderedValue(iv.MaxDepth)},
		})
	}
	d = append(d, bson.E{Key: model.FieldIntervals, Value: intervals})

	for _, f := range model.EnrichmentFields {
		if v, ok := r.Get(f); ok && v != nil {
			d = append(d, bson.E{Key: f, Value: orderedValue(v)})
		}
	}
	return d
}

// orderedValue replaces every map inside v with a bson.D sorted by key.
func orderedValue(v any) any {
	switch t := v.(type) {
	case model.Doc:
		return orderedValue(map[string]any(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		d := make(bson.D, 0, len(keys))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: orderedValue(t[k])})
		}
		return d
	case []any:
		a := make(bson.A, len(t))
		for i, e := range t {
			a[i] = orderedValue(e)
		}
		return a
	default:
		return v
	}
}
