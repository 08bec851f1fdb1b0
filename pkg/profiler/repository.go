package profiler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// UpsertProfile inserts the profile or, when the project already has
	// one, updates it in place keeping the stored uid.
	UpsertProfile(ctx context.Context, userId string, profile Profile) (Profile, error)
	GetByProject(ctx context.Context, userId string, projectUid string) (Profile, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) UpsertProfile(ctx context.Context, userId string, profile Profile) (Profile, error) {
	complexity, err := marshalComplexity(profile.Complexity)
	if err != nil {
		return Profile{}, err
	}
	query := `INSERT INTO building_profiles (uid, user_id, project_uid, class, subclass,
					gross_floor_area, storeys, complexity, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (project_uid) DO UPDATE SET
					class = excluded.class,
					subclass = excluded.subclass,
					gross_floor_area = excluded.gross_floor_area,
					storeys = excluded.storeys,
					complexity = excluded.complexity,
					updated_at = excluded.updated_at`
	_, err = r.db.ExecContext(ctx, query,
		profile.Uid,
		userId,
		profile.ProjectUid,
		profile.Class,
		profile.Subclass,
		profile.GrossFloorArea,
		profile.Storeys,
		complexity,
		profile.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err := fmt.Errorf("could not upsert building profile: %w", err)
		log.Error(err)
		return Profile{}, err
	}
	return r.GetByProject(ctx, userId, profile.ProjectUid)
}

func (r *RepositoryImpl) GetByProject(ctx context.Context, userId string, projectUid string) (Profile, error) {
	query := `SELECT uid, project_uid, class, subclass, gross_floor_area, storeys, complexity, updated_at
				FROM building_profiles WHERE user_id = $1 AND project_uid = $2`
	row := r.db.QueryRowContext(ctx, query, userId, projectUid)

	var profile Profile
	var complexity, updatedAt string
	err := row.Scan(
		&profile.Uid,
		&profile.ProjectUid,
		&profile.Class,
		&profile.Subclass,
		&profile.GrossFloorArea,
		&profile.Storeys,
		&complexity,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	} else if err != nil {
		log.Errorf("failed to get building profile for project %s: %v", projectUid, err)
		return Profile{}, err
	}
	if profile.Complexity, err = unmarshalComplexity(complexity); err != nil {
		return Profile{}, err
	}
	if profile.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Profile{}, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return profile, nil
}

func marshalComplexity(complexity map[string]string) (string, error) {
	if len(complexity) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(complexity)
	if err != nil {
		return "", fmt.Errorf("could not encode complexity selections: %w", err)
	}
	return string(data), nil
}

func unmarshalComplexity(data string) (map[string]string, error) {
	var complexity map[string]string
	if err := json.Unmarshal([]byte(data), &complexity); err != nil {
		return nil, fmt.Errorf("invalid complexity selections %q: %w", data, err)
	}
	if len(complexity) == 0 {
		return nil, nil
	}
	return complexity, nil
}
