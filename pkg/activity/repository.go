package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Repository interface {
	CreateEntry(ctx context.Context, userId string, entry Entry) (Entry, error)
	// ListEntries returns the newest entries of a project, newest first.
	ListEntries(ctx context.Context, userId string, projectUid string, limit int) ([]Entry, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateEntry(ctx context.Context, userId string, entry Entry) (Entry, error) {
	query := `INSERT INTO activity_log (uid, user_id, project_uid, kind, summary, detail, occurred_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		entry.Uid,
		userId,
		entry.ProjectUid,
		entry.Kind,
		entry.Summary,
		entry.Detail,
		entry.OccurredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err := fmt.Errorf("could not insert activity entry: %w", err)
		log.Error(err)
		return Entry{}, err
	}
	return entry, nil
}

func (r *RepositoryImpl) ListEntries(ctx context.Context, userId string, projectUid string, limit int) ([]Entry, error) {
	query := `SELECT uid, project_uid, kind, summary, detail, occurred_at FROM activity_log
				WHERE user_id = $1 AND project_uid = $2
				ORDER BY occurred_at DESC, uid DESC
				LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userId, projectUid, limit)
	if err != nil {
		err := fmt.Errorf("could not query activity entries: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var occurredAt string
		err := rows.Scan(&entry.Uid, &entry.ProjectUid, &entry.Kind, &entry.Summary, &entry.Detail, &occurredAt)
		if err != nil {
			log.Errorf("failed to scan activity entry: %v", err)
			return nil, err
		}
		if entry.OccurredAt, err = time.Parse(time.RFC3339, occurredAt); err != nil {
			return nil, fmt.Errorf("invalid occurred_at %q: %w", occurredAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
