// Package memstore is an in-memory docstore.Store used by tests and local
// development. It evaluates the same filter/order semantics as the Mongo
// store and fans out full snapshots to subscribers synchronously after every
// successful write, which keeps tests deterministic.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/docstore"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type subscription struct {
	id         int
	filters    []docstore.Filter
	order      *docstore.Order
	onSnapshot docstore.SnapshotFunc
	onError    docstore.ErrorFunc
}

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M
	subs        map[string]map[int]*subscription
	nextSubID   int

	// failNext maps an operation name ("get", "set", "update", "delete",
	// "query") to an error returned once and then cleared. Used to simulate
	// remote failures in rollback and fallback tests.
	failNext map[string]error

	refreshed int
}

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]bson.M),
		subs:        make(map[string]map[int]*subscription),
		failNext:    make(map[string]error),
	}
}

// FailNext makes the next call of the named operation fail with err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] = err
}

func (s *Store) takeFailure(op string) error {
	if err, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return err
	}
	return nil
}

// RefreshCount reports how many times RefreshConnection was invoked.
func (s *Store) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed
}

func (s *Store) RefreshConnection(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed++
	return true
}

func toDoc(doc interface{}) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, collection, id string, out interface{}) error {
	s.mu.Lock()
	if err := s.takeFailure("get"); err != nil {
		s.mu.Unlock()
		return err
	}
	doc, ok := s.collections[collection][id]
	s.mu.Unlock()

	if !ok {
		return apperrors.ErrNotFound
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}) error {
	m, err := toDoc(doc)
	if err != nil {
		return err
	}
	m["_id"] = id

	s.mu.Lock()
	if err := s.takeFailure("set"); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]bson.M)
	}
	s.collections[collection][id] = m
	notify := s.snapshotLocked(collection)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	normalized, err := toDoc(bson.M(patch))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.takeFailure("update"); err != nil {
		s.mu.Unlock()
		return err
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrNotFound
	}
	for field, value := range normalized {
		doc[field] = value
	}
	notify := s.snapshotLocked(collection)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if err := s.takeFailure("delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return apperrors.ErrNotFound
	}
	delete(s.collections[collection], id)
	notify := s.snapshotLocked(collection)
	s.mu.Unlock()

	notify()
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filters []docstore.Filter, order *docstore.Order, out interface{}) error {
	s.mu.Lock()
	if err := s.takeFailure("query"); err != nil {
		s.mu.Unlock()
		return err
	}
	docs := s.resultSetLocked(collection, filters, order)
	s.mu.Unlock()

	return decodeList(docs, out)
}

func (s *Store) Subscribe(ctx context.Context, collection string, filters []docstore.Filter, order *docstore.Order, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (func(), error) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	sub := &subscription{id: id, filters: filters, order: order, onSnapshot: onSnapshot, onError: onError}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]*subscription)
	}
	s.subs[collection][id] = sub
	initial := s.resultSetLocked(collection, filters, order)
	s.mu.Unlock()

	onSnapshot(initial)

	cancel := func() {
		s.mu.Lock()
		delete(s.subs[collection], id)
		s.mu.Unlock()
	}
	return cancel, nil
}

// snapshotLocked computes per-subscriber snapshots under the lock and returns
// a closure that delivers them after the lock is released, so callbacks may
// safely call back into the store.
func (s *Store) snapshotLocked(collection string) func() {
	type delivery struct {
		fn   docstore.SnapshotFunc
		docs []bson.Raw
	}
	var deliveries []delivery
	for _, sub := range s.subs[collection] {
		deliveries = append(deliveries, delivery{
			fn:   sub.onSnapshot,
			docs: s.resultSetLocked(collection, sub.filters, sub.order),
		})
	}
	return func() {
		for _, d := range deliveries {
			d.fn(d.docs)
		}
	}
}

func (s *Store) resultSetLocked(collection string, filters []docstore.Filter, order *docstore.Order) []bson.Raw {
	var matched []bson.M
	for _, doc := range s.collections[collection] {
		if matchesAll(doc, filters) {
			matched = append(matched, doc)
		}
	}

	if order != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i][order.Field], matched[j][order.Field]
			if order.Desc {
				return less(b, a)
			}
			return less(a, b)
		})
	}

	docs := make([]bson.Raw, 0, len(matched))
	for _, doc := range matched {
		raw, err := bson.Marshal(doc)
		if err != nil {
			continue
		}
		docs = append(docs, raw)
	}
	return docs
}

func matchesAll(doc bson.M, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc bson.M, f docstore.Filter) bool {
	value := doc[f.Field]
	switch f.Op {
	case "!=":
		return !equal(value, f.Value)
	case "array-contains":
		arr, ok := value.(primitive.A)
		if !ok {
			return false
		}
		for _, item := range arr {
			if equal(item, f.Value) {
				return true
			}
		}
		return false
	default:
		return equal(value, f.Value)
	}
}

func equal(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func less(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return av < bv
	case primitive.DateTime:
		bv, _ := b.(primitive.DateTime)
		return av < bv
	case int32:
		bv, _ := b.(int32)
		return av < bv
	case int64:
		bv, _ := b.(int64)
		return av < bv
	case float64:
		bv, _ := b.(float64)
		return av < bv
	default:
		return a == nil && b != nil
	}
}

func decodeList(docs []bson.Raw, out interface{}) error {
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Ptr || outVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("decode target must be a pointer to a slice, got %T", out)
	}
	sliceVal := outVal.Elem()
	elemType := sliceVal.Type().Elem()
	result := reflect.MakeSlice(sliceVal.Type(), 0, len(docs))
	for _, doc := range docs {
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(doc, elem.Interface()); err != nil {
			return fmt.Errorf("failed to decode document: %v", err)
		}
		result = reflect.Append(result, elem.Elem())
	}
	sliceVal.Set(result)
	return nil
}
