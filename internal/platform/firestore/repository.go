package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded entity with its Firestore metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
	ReadTime   time.Time
}

// MutationResult reports when a mutation was applied.
type MutationResult struct {
	UpdateTime time.Time
}

// Encoder turns an entity into the payload handed to Firestore.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder rebuilds an entity from a document snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder refines the collection query before it runs.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository wraps one collection with typed create/read/update helpers.
// Repositories that need transactions reach the raw refs through DocumentRef.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository binds a repository to a collection. A nil encoder stores
// values as-is; a nil decoder uses Firestore's struct mapping.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Create inserts the value under id. An existing document surfaces as a
// conflict, which is how identity uniqueness is enforced.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) (MutationResult, error) {
	ref, err := r.ref(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}

	payload, err := r.encode(ctx, value)
	if err != nil {
		return MutationResult{}, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}

	res, err := ref.Create(ctx, payload)
	if err != nil {
		return MutationResult{}, WrapError(r.label("create"), err)
	}
	return MutationResult{UpdateTime: res.UpdateTime}, nil
}

// Set upserts the value under id.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) (MutationResult, error) {
	ref, err := r.ref(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}

	payload, err := r.encode(ctx, value)
	if err != nil {
		return MutationResult{}, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}

	res, err := ref.Set(ctx, payload, opts...)
	if err != nil {
		return MutationResult{}, WrapError(r.label("set"), err)
	}
	return MutationResult{UpdateTime: res.UpdateTime}, nil
}

// Update applies a partial update to the document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, opts ...firestore.Precondition) (MutationResult, error) {
	ref, err := r.ref(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	res, err := ref.Update(ctx, updates, opts...)
	if err != nil {
		return MutationResult{}, WrapError(r.label("update"), err)
	}
	return MutationResult{UpdateTime: res.UpdateTime}, nil
}

// Get loads and decodes one document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.label("get"), err)
	}
	return r.fromSnapshot(ctx, snap)
}

// Query runs the built query and decodes every matching document.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.label("query"), err)
		}
		doc, err := r.fromSnapshot(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		docs = append(docs, doc)
	}
}

// DocumentRef hands out the raw reference for transactional reads and writes.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.ref(ctx, id)
}

func (r *BaseRepository[T]) fromSnapshot(ctx context.Context, snap *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snap)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
		ReadTime:   snap.ReadTime,
	}, nil
}

func (r *BaseRepository[T]) coll(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.label("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.label("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.label("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) label(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return name + "." + strings.ToLower(action)
}

// IdentityEncoder stores the value unchanged, leaving mapping to Firestore.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// MapEncoder passes already-Firestore-shaped maps straight through.
func MapEncoder[T ~map[string]any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return map[string]any(value), nil
	}
}

// StructDecoder fills the target struct via Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}

// MapDecoder surfaces the raw map representation of a document.
func MapDecoder() Decoder[map[string]any] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (map[string]any, error) {
		data := snap.Data()
		if data == nil {
			data = map[string]any{}
		}
		return data, nil
	}
}
