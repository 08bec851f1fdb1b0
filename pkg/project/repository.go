package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Repository interface {
	CreateProject(ctx context.Context, userId string, project Project) (Project, error)
	GetProject(ctx context.Context, userId string, uid string) (Project, error)
	ListProjects(ctx context.Context, userId string, includeArchived bool) ([]Project, error)
	UpdateProject(ctx context.Context, userId string, project Project) (Project, error)
	SetStatus(ctx context.Context, userId string, uid string, status Status) error
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewProjectRepo(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateProject(ctx context.Context, userId string, project Project) (Project, error) {
	query := `INSERT INTO projects (uid, user_id, name, code, client, currency, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		project.Uid,
		userId,
		project.Name,
		project.Code,
		project.Client,
		project.Currency,
		project.Status,
		project.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return Project{}, err
	}
	return project, nil
}

func (r *RepositoryImpl) GetProject(ctx context.Context, userId string, uid string) (Project, error) {
	query := `SELECT uid, name, code, client, currency, status, created_at
				FROM projects WHERE user_id = $1 AND uid = $2`
	project, err := scanProject(r.db.QueryRowContext(ctx, query, userId, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrProjectNotFound
	} else if err != nil {
		log.Errorf("failed to get project %s: %v", uid, err)
		return Project{}, err
	}
	return project, nil
}

func (r *RepositoryImpl) ListProjects(ctx context.Context, userId string, includeArchived bool) ([]Project, error) {
	query := `SELECT uid, name, code, client, currency, status, created_at
				FROM projects WHERE user_id = $1`
	if !includeArchived {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at DESC, uid`

	rows, err := r.db.QueryContext(ctx, query, userId)
	if err != nil {
		err := fmt.Errorf("could not query projects: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			log.Errorf("failed to scan project: %v", err)
			return nil, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *RepositoryImpl) UpdateProject(ctx context.Context, userId string, project Project) (Project, error) {
	query := `UPDATE projects SET name = $1, code = $2, client = $3, currency = $4
				WHERE user_id = $5 AND uid = $6`
	result, err := r.db.ExecContext(ctx, query,
		project.Name,
		project.Code,
		project.Client,
		project.Currency,
		userId,
		project.Uid,
	)
	if err != nil {
		log.Errorf("failed to update project %s: %v", project.Uid, err)
		return Project{}, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Project{}, err
	}
	if rowsAffected == 0 {
		return Project{}, ErrProjectNotFound
	}
	return r.GetProject(ctx, userId, project.Uid)
}

func (r *RepositoryImpl) SetStatus(ctx context.Context, userId string, uid string, status Status) error {
	query := `UPDATE projects SET status = $1 WHERE user_id = $2 AND uid = $3`
	result, err := r.db.ExecContext(ctx, query, status, userId, uid)
	if err != nil {
		log.Errorf("failed to set project %s status: %v", uid, err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var project Project
	var createdAt string
	err := row.Scan(
		&project.Uid,
		&project.Name,
		&project.Code,
		&project.Client,
		&project.Currency,
		&project.Status,
		&createdAt,
	)
	if err != nil {
		return Project{}, err
	}
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Project{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	project.CreatedAt = parsed
	return project, nil
}
