package board

import (
	"context"
	"sync"

	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

const (
	TasksCollection   = "tasks"
	MembersCollection = "members"
)

// Notifier fans task lifecycle events out to recipients. The actor is always
// excluded downstream.
type Notifier interface {
	TaskEvent(ctx context.Context, event models.NotificationType, actorID, taskID, title, message string, recipients []string)
}

// Synchronizer keeps in-memory mirrors of the tasks and members collections,
// current via push subscriptions. Mirrors are owned here: all mutations flow
// through the optimistic mutation layer in this package, never directly.
type Synchronizer struct {
	store    docstore.Store
	notifier Notifier

	mu      sync.Mutex
	tasks   []models.Task
	members []models.Member
	// pending holds the optimistic copy of every record with an in-flight
	// write, keyed by task id, so snapshots can be reconciled field-level.
	pending map[string]models.Task
	lastErr error

	cancelTasks   func()
	cancelMembers func()
}

func NewSynchronizer(store docstore.Store, notifier Notifier) *Synchronizer {
	return &Synchronizer{
		store:    store,
		notifier: notifier,
		pending:  make(map[string]models.Task),
	}
}

// Start establishes both subscriptions. The caller rebinds on every identity
// change; a subscription is never left running against a stale scope.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.Stop()

	// Work items: all records, newest activity first. Ordering is delegated
	// to the remote query and never redone client-side, so records don't
	// jump position mid-edit.
	cancelTasks, err := s.store.Subscribe(ctx, TasksCollection, nil,
		&docstore.Order{Field: "updatedAt", Desc: true},
		s.handleTaskSnapshot, s.handleStreamError)
	if err != nil {
		s.setError(err)
		return err
	}

	// Members: active records only, sorted by name.
	cancelMembers, err := s.store.Subscribe(ctx, MembersCollection,
		[]docstore.Filter{{Field: "active", Op: "!=", Value: false}},
		&docstore.Order{Field: "name", Desc: false},
		s.handleMemberSnapshot, s.handleStreamError)
	if err != nil {
		cancelTasks()
		s.setError(err)
		return err
	}

	s.mu.Lock()
	s.cancelTasks = cancelTasks
	s.cancelMembers = cancelMembers
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

// Stop tears down both subscriptions and empties the mirrors.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancelTasks, cancelMembers := s.cancelTasks, s.cancelMembers
	s.cancelTasks, s.cancelMembers = nil, nil
	s.tasks = nil
	s.members = nil
	s.pending = make(map[string]models.Task)
	s.mu.Unlock()

	if cancelTasks != nil {
		cancelTasks()
	}
	if cancelMembers != nil {
		cancelMembers()
	}
}

// Resync forces a full teardown/rebuild cycle of both subscriptions.
func (s *Synchronizer) Resync(ctx context.Context) error {
	return s.Start(ctx)
}

// RefreshConnection rebuilds the backend connection from the latest
// configuration and resets the subscriptions. Returns false if either step
// fails.
func (s *Synchronizer) RefreshConnection(ctx context.Context) bool {
	resetter, ok := s.store.(docstore.Resetter)
	if ok && !resetter.RefreshConnection(ctx) {
		return false
	}
	if err := s.Resync(ctx); err != nil {
		logging.Logger.Errorf("Event ID: RESYNC_FAILED, Description: Failed to rebuild subscriptions after connection refresh: %v", err)
		return false
	}
	return true
}

// handleTaskSnapshot rebuilds the tasks mirror from the full snapshot.
// Collection membership always follows the server; field-level reconcile
// happens only for records with a pending optimistic edit.
func (s *Synchronizer) handleTaskSnapshot(docs []bson.Raw) {
	fresh := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		var task models.Task
		if err := bson.Unmarshal(doc, &task); err != nil {
			logging.Logger.Errorf("Event ID: SNAPSHOT_DECODE_FAILED, Description: Failed to decode work item from snapshot: %v", err)
			continue
		}
		fresh = append(fresh, task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, task := range fresh {
		optimistic, ok := s.pending[task.ID]
		if !ok {
			continue
		}
		if Confirmed(optimistic, task) {
			delete(s.pending, task.ID)
			continue
		}
		fresh[i] = Reconcile(optimistic, task)
	}

	s.tasks = fresh
	s.lastErr = nil
}

func (s *Synchronizer) handleMemberSnapshot(docs []bson.Raw) {
	fresh := make([]models.Member, 0, len(docs))
	for _, doc := range docs {
		var member models.Member
		if err := bson.Unmarshal(doc, &member); err != nil {
			logging.Logger.Errorf("Event ID: SNAPSHOT_DECODE_FAILED, Description: Failed to decode member from snapshot: %v", err)
			continue
		}
		fresh = append(fresh, member)
	}

	s.mu.Lock()
	s.members = fresh
	s.lastErr = nil
	s.mu.Unlock()
}

// handleStreamError logs, empties the mirrors and retains the error flag.
// The consuming view stays alive; Resync or RefreshConnection recovers.
func (s *Synchronizer) handleStreamError(err error) {
	logging.Logger.Errorf("Event ID: SNAPSHOT_STREAM_ERROR, Description: Subscription stream failed: %v", err)
	s.mu.Lock()
	s.tasks = nil
	s.members = nil
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Synchronizer) setError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Err returns the retained stream error, if any.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Tasks returns a deep copy of the work-items mirror. Handed-out records
// never alias mirror state.
func (s *Synchronizer) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, len(s.tasks))
	for i, task := range s.tasks {
		out[i] = task.Clone()
	}
	return out
}

// Task returns a deep copy of one mirror entry.
func (s *Synchronizer) Task(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.tasks, func(t models.Task) bool { return t.ID == id })
	if idx < 0 {
		return models.Task{}, false
	}
	return s.tasks[idx].Clone(), true
}

// Members returns a copy of the members mirror.
func (s *Synchronizer) Members() []models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Member(nil), s.members...)
}

// adminAndManagerIDs lists the ids of every admin- and manager-tier member,
// the implicit recipients of task lifecycle notifications.
func (s *Synchronizer) adminAndManagerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, member := range s.members {
		if member.UserRole == models.RoleAdmin || member.UserRole == models.RoleManager {
			ids = append(ids, member.ID)
		}
	}
	return ids
}

// updateMirror applies fn to the mirror entry for id under the lock. fn
// receives a deep clone and must return the replacement record.
func (s *Synchronizer) updateMirror(id string, fn func(models.Task) models.Task) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.tasks, func(t models.Task) bool { return t.ID == id })
	if idx < 0 {
		return models.Task{}, false
	}
	updated := fn(s.tasks[idx].Clone())
	s.tasks[idx] = updated
	s.pending[id] = updated.Clone()
	return updated.Clone(), true
}
