package variation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/costwise/costwise/pkg/money"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	CreateVariation(ctx context.Context, userId string, variation Variation) (Variation, error)
	GetVariation(ctx context.Context, userId string, uid string) (Variation, error)
	// ListVariations returns the project's variations in number order,
	// restricted to one status when status is not empty.
	ListVariations(ctx context.Context, userId string, projectUid string, status Status) ([]Variation, error)
	UpdateVariation(ctx context.Context, userId string, variation Variation) (Variation, error)
	UpdateStatus(ctx context.Context, userId string, variation Variation) error
	DeleteVariation(ctx context.Context, userId string, uid string) (bool, error)
	NextNumber(ctx context.Context, userId string, projectUid string) (int, error)
	ApprovedTotalsByLine(ctx context.Context, userId string, projectUid string) (map[string]money.Cents, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewVariationRepo(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const variationColumns = `uid, project_uid, cost_line_uid, number, title, detail, category,
		amount, status, match_score, match_method, submitted_at, decided_at, created_at`

func (r *RepositoryImpl) CreateVariation(ctx context.Context, userId string, variation Variation) (Variation, error) {
	query := `INSERT INTO variations (uid, user_id, project_uid, cost_line_uid, number, title, detail,
					category, amount, status, match_score, match_method, submitted_at, decided_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.ExecContext(ctx, query,
		variation.Uid,
		userId,
		variation.ProjectUid,
		nullableUid(variation.CostLineUid),
		variation.Number,
		variation.Title,
		variation.Detail,
		variation.Category,
		int64(variation.Amount),
		variation.Status,
		variation.MatchScore,
		variation.MatchMethod,
		nullableTime(variation.SubmittedAt),
		nullableTime(variation.DecidedAt),
		variation.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err := fmt.Errorf("could not insert variation: %w", err)
		log.Error(err)
		return Variation{}, err
	}
	return variation, nil
}

func (r *RepositoryImpl) GetVariation(ctx context.Context, userId string, uid string) (Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM variations WHERE user_id = $1 AND uid = $2`
	variation, err := scanVariation(r.db.QueryRowContext(ctx, query, userId, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return Variation{}, ErrVariationNotFound
	} else if err != nil {
		log.Errorf("failed to get variation %s: %v", uid, err)
		return Variation{}, err
	}
	return variation, nil
}

func (r *RepositoryImpl) ListVariations(ctx context.Context, userId string, projectUid string, status Status) ([]Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM variations WHERE user_id = $1 AND project_uid = $2`
	args := []any{userId, projectUid}
	if status != "" {
		query += ` AND status = $3`
		args = append(args, status)
	}
	query += ` ORDER BY number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query variations: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	variations := make([]Variation, 0)
	for rows.Next() {
		variation, err := scanVariation(rows)
		if err != nil {
			log.Errorf("failed to scan variation: %v", err)
			return nil, err
		}
		variations = append(variations, variation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variations, nil
}

func (r *RepositoryImpl) UpdateVariation(ctx context.Context, userId string, variation Variation) (Variation, error) {
	query := `UPDATE variations SET cost_line_uid = $1, title = $2, detail = $3, category = $4,
					amount = $5, match_score = $6, match_method = $7
				WHERE user_id = $8 AND uid = $9`
	result, err := r.db.ExecContext(ctx, query,
		nullableUid(variation.CostLineUid),
		variation.Title,
		variation.Detail,
		variation.Category,
		int64(variation.Amount),
		variation.MatchScore,
		variation.MatchMethod,
		userId,
		variation.Uid,
	)
	if err != nil {
		log.Errorf("failed to update variation %s: %v", variation.Uid, err)
		return Variation{}, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Variation{}, err
	}
	if rowsAffected == 0 {
		return Variation{}, ErrVariationNotFound
	}
	return r.GetVariation(ctx, userId, variation.Uid)
}

func (r *RepositoryImpl) UpdateStatus(ctx context.Context, userId string, variation Variation) error {
	query := `UPDATE variations SET status = $1, submitted_at = $2, decided_at = $3
				WHERE user_id = $4 AND uid = $5`
	result, err := r.db.ExecContext(ctx, query,
		variation.Status,
		nullableTime(variation.SubmittedAt),
		nullableTime(variation.DecidedAt),
		userId,
		variation.Uid,
	)
	if err != nil {
		log.Errorf("failed to update variation %s status: %v", variation.Uid, err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrVariationNotFound
	}
	return nil
}

func (r *RepositoryImpl) DeleteVariation(ctx context.Context, userId string, uid string) (bool, error) {
	query := `DELETE FROM variations WHERE user_id = $1 AND uid = $2`
	result, err := r.db.ExecContext(ctx, query, userId, uid)
	if err != nil {
		log.Errorf("failed to delete variation %s: %v", uid, err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *RepositoryImpl) NextNumber(ctx context.Context, userId string, projectUid string) (int, error) {
	query := `SELECT COALESCE(MAX(number), 0) + 1 FROM variations WHERE user_id = $1 AND project_uid = $2`
	var next int
	if err := r.db.QueryRowContext(ctx, query, userId, projectUid).Scan(&next); err != nil {
		log.Errorf("failed to get next variation number: %v", err)
		return 0, err
	}
	return next, nil
}

// ApprovedTotalsByLine sums approved variation amounts per cost line. The
// empty key collects approved variations whose line has been deleted.
func (r *RepositoryImpl) ApprovedTotalsByLine(ctx context.Context, userId string, projectUid string) (map[string]money.Cents, error) {
	query := `SELECT COALESCE(cost_line_uid, ''), SUM(amount) FROM variations
				WHERE user_id = $1 AND project_uid = $2 AND status = 'approved'
				GROUP BY COALESCE(cost_line_uid, '')`
	rows, err := r.db.QueryContext(ctx, query, userId, projectUid)
	if err != nil {
		err := fmt.Errorf("could not query variation totals: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]money.Cents)
	for rows.Next() {
		var lineUid string
		var total int64
		if err := rows.Scan(&lineUid, &total); err != nil {
			return nil, err
		}
		totals[lineUid] = money.Cents(total)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func nullableUid(uid string) any {
	if uid == "" {
		return nil
	}
	return uid
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariation(row rowScanner) (Variation, error) {
	var variation Variation
	var costLineUid, submittedAt, decidedAt sql.NullString
	var amount int64
	var createdAt string
	err := row.Scan(
		&variation.Uid,
		&variation.ProjectUid,
		&costLineUid,
		&variation.Number,
		&variation.Title,
		&variation.Detail,
		&variation.Category,
		&amount,
		&variation.Status,
		&variation.MatchScore,
		&variation.MatchMethod,
		&submittedAt,
		&decidedAt,
		&createdAt,
	)
	if err != nil {
		return Variation{}, err
	}
	variation.CostLineUid = costLineUid.String
	variation.Amount = money.Cents(amount)
	if variation.SubmittedAt, err = parseNullableTime(submittedAt); err != nil {
		return Variation{}, err
	}
	if variation.DecidedAt, err = parseNullableTime(decidedAt); err != nil {
		return Variation{}, err
	}
	if variation.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Variation{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return variation, nil
}

func parseNullableTime(value sql.NullString) (time.Time, error) {
	if !value.Valid {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value.String, err)
	}
	return parsed, nil
}
