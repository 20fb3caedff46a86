package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"

	"github.com/gocql/gocql"
)

// Repository persists notifications. Fanout writes through it; reads back a
// recipient's feed newest-first.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListForUser(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string, createdAt time.Time) error
}

// CassandraRepository stores notifications in Cassandra, partitioned by
// recipient and clustered newest-first.
type CassandraRepository struct {
	session *gocql.Session
}

func NewCassandraRepository(host string) (*CassandraRepository, error) {
	cluster := gocql.NewCluster(host)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %v", err)
	}

	err = session.Query(
		`CREATE KEYSPACE IF NOT EXISTS notifications
         WITH replication = {
             'class': 'SimpleStrategy',
             'replication_factor': 1
         }`).Exec()
	if err != nil {
		return nil, fmt.Errorf("failed to create keyspace: %v", err)
	}
	session.Close()

	cluster.Keyspace = "notifications"
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to notifications keyspace: %v", err)
	}

	logging.Logger.Info("Event ID: CASSANDRA_CONNECTED, Description: Connected to Cassandra notifications keyspace")
	return &CassandraRepository{session: session}, nil
}

// CreateTable bootstraps the notifications table.
func (r *CassandraRepository) CreateTable() error {
	err := r.session.Query(
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID,
			user_id TEXT,
			type TEXT,
			title TEXT,
			message TEXT,
			task_id TEXT,
			link TEXT,
			created_at TIMESTAMP,
			read BOOLEAN,
			PRIMARY KEY ((user_id), created_at, id)
		) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)`).Exec()
	if err != nil {
		return fmt.Errorf("failed to create notifications table: %v", err)
	}
	return nil
}

func (r *CassandraRepository) Close() {
	r.session.Close()
}

func (r *CassandraRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = gocql.TimeUUID().String()
	}

	err := r.session.Query(
		`INSERT INTO notifications (id, user_id, type, title, message, task_id, link, created_at, read)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID, notification.UserID, string(notification.Type), notification.Title,
		notification.Message, notification.TaskID, notification.Link, notification.CreatedAt, notification.Read,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to create notification: %v", err)
	}
	return nil
}

func (r *CassandraRepository) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	query := `SELECT id, user_id, type, title, message, task_id, link, created_at, read
			  FROM notifications WHERE user_id = ?`

	iter := r.session.Query(query, userID).WithContext(ctx).Iter()
	var notifications []models.Notification
	var n models.Notification
	var typ string

	for iter.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.TaskID, &n.Link, &n.CreatedAt, &n.Read) {
		n.Type = models.NotificationType(typ)
		notifications = append(notifications, n)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list notifications for %s: %v", userID, err)
	}
	return notifications, nil
}

func (r *CassandraRepository) MarkRead(ctx context.Context, userID, notificationID string, createdAt time.Time) error {
	id, err := gocql.ParseUUID(notificationID)
	if err != nil {
		return fmt.Errorf("invalid notification id: %v", err)
	}

	query := `UPDATE notifications SET read = true WHERE user_id = ? AND id = ? AND created_at = ?`
	if err := r.session.Query(query, userID, id, createdAt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to mark notification read: %v", err)
	}
	return nil
}
