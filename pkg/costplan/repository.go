package costplan

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
	CreateLine(ctx context.Context, userId string, line CostLine) (CostLine, error)
	GetLine(ctx context.Context, userId string, uid string) (CostLine, error)
	ListLines(ctx context.Context, userId string, projectUid string) ([]CostLine, error)
	UpdateLine(ctx context.Context, userId string, line CostLine) (CostLine, error)
	UpdateLinePosition(ctx context.Context, userId string, uid string, position int) error
	SetLocked(ctx context.Context, userId string, uid string, locked bool, updatedAt time.Time) error
	DeleteLine(ctx context.Context, userId string, uid string) (bool, error)
	// ApplyBudgets writes an estimate back in a single transaction. Updates
	// touch only budget and updated_at; inserts create lines for sections
	// that had none.
	ApplyBudgets(ctx context.Context, userId string, updates []BudgetUpdate, inserts []CostLine) error
}

// BudgetUpdate is one budget write-back of an applied estimate.
type BudgetUpdate struct {
	Uid       string
	Budget    money.Cents
	UpdatedAt time.Time
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewCostPlanRepo(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const lineColumns = `uid, project_uid, section, activity, budget, approved_contract,
		contract_awarded, locked, position, note, created_at, updated_at`

func (r *RepositoryImpl) CreateLine(ctx context.Context, userId string, line CostLine) (CostLine, error) {
	query := `INSERT INTO cost_lines (uid, user_id, project_uid, section, activity, budget,
					approved_contract, contract_awarded, locked, position, note, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query,
		line.Uid,
		userId,
		line.ProjectUid,
		line.Section,
		line.Activity,
		int64(line.Budget),
		int64(line.ApprovedContract),
		line.ContractAwarded,
		line.Locked,
		line.Position,
		line.Note,
		line.CreatedAt.UTC().Format(time.RFC3339),
		line.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err := fmt.Errorf("could not insert cost line: %w", err)
		log.Error(err)
		return CostLine{}, err
	}
	return line, nil
}

func (r *RepositoryImpl) GetLine(ctx context.Context, userId string, uid string) (CostLine, error) {
	query := `SELECT ` + lineColumns + ` FROM cost_lines WHERE user_id = $1 AND uid = $2`
	line, err := scanLine(r.db.QueryRowContext(ctx, query, userId, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return CostLine{}, ErrLineNotFound
	} else if err != nil {
		log.Errorf("failed to get cost line %s: %v", uid, err)
		return CostLine{}, err
	}
	return line, nil
}

func (r *RepositoryImpl) ListLines(ctx context.Context, userId string, projectUid string) ([]CostLine, error) {
	query := `SELECT ` + lineColumns + ` FROM cost_lines
				WHERE user_id = $1 AND project_uid = $2 ORDER BY position, uid`
	rows, err := r.db.QueryContext(ctx, query, userId, projectUid)
	if err != nil {
		err := fmt.Errorf("could not query cost lines: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	lines := make([]CostLine, 0)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			log.Errorf("failed to scan cost line: %v", err)
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *RepositoryImpl) UpdateLine(ctx context.Context, userId string, line CostLine) (CostLine, error) {
	query := `UPDATE cost_lines SET section = $1, activity = $2, budget = $3,
					approved_contract = $4, contract_awarded = $5, note = $6, updated_at = $7
				WHERE user_id = $8 AND uid = $9`
	result, err := r.db.ExecContext(ctx, query,
		line.Section,
		line.Activity,
		int64(line.Budget),
		int64(line.ApprovedContract),
		line.ContractAwarded,
		line.Note,
		line.UpdatedAt.UTC().Format(time.RFC3339),
		userId,
		line.Uid,
	)
	if err != nil {
		log.Errorf("failed to update cost line %s: %v", line.Uid, err)
		return CostLine{}, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return CostLine{}, err
	}
	if rowsAffected == 0 {
		return CostLine{}, ErrLineNotFound
	}
	return r.GetLine(ctx, userId, line.Uid)
}

func (r *RepositoryImpl) UpdateLinePosition(ctx context.Context, userId string, uid string, position int) error {
	query := `UPDATE cost_lines SET position = $1 WHERE user_id = $2 AND uid = $3`
	result, err := r.db.ExecContext(ctx, query, position, userId, uid)
	if err != nil {
		log.Errorf("failed to move cost line %s: %v", uid, err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *RepositoryImpl) SetLocked(ctx context.Context, userId string, uid string, locked bool, updatedAt time.Time) error {
	query := `UPDATE cost_lines SET locked = $1, updated_at = $2 WHERE user_id = $3 AND uid = $4`
	result, err := r.db.ExecContext(ctx, query, locked, updatedAt.UTC().Format(time.RFC3339), userId, uid)
	if err != nil {
		log.Errorf("failed to set cost line %s lock: %v", uid, err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *RepositoryImpl) DeleteLine(ctx context.Context, userId string, uid string) (bool, error) {
	// Links from variations and invoices are cleared by the schema's
	// ON DELETE SET NULL.
	query := `DELETE FROM cost_lines WHERE user_id = $1 AND uid = $2`
	result, err := r.db.ExecContext(ctx, query, userId, uid)
	if err != nil {
		log.Errorf("failed to delete cost line %s: %v", uid, err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *RepositoryImpl) ApplyBudgets(ctx context.Context, userId string, updates []BudgetUpdate, inserts []CostLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, update := range updates {
		result, err := tx.ExecContext(ctx,
			`UPDATE cost_lines SET budget = $1, updated_at = $2 WHERE user_id = $3 AND uid = $4`,
			int64(update.Budget),
			update.UpdatedAt.UTC().Format(time.RFC3339),
			userId,
			update.Uid,
		)
		if err != nil {
			log.Errorf("failed to write budget for cost line %s: %v", update.Uid, err)
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrLineNotFound
		}
	}

	for _, line := range inserts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cost_lines (uid, user_id, project_uid, section, activity, budget,
					approved_contract, contract_awarded, locked, position, note, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			line.Uid,
			userId,
			line.ProjectUid,
			line.Section,
			line.Activity,
			int64(line.Budget),
			int64(line.ApprovedContract),
			line.ContractAwarded,
			line.Locked,
			line.Position,
			line.Note,
			line.CreatedAt.UTC().Format(time.RFC3339),
			line.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			log.Errorf("failed to insert cost line for section %s: %v", line.Section, err)
			return err
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner) (CostLine, error) {
	var line CostLine
	var budget, approvedContract int64
	var createdAt, updatedAt string
	err := row.Scan(
		&line.Uid,
		&line.ProjectUid,
		&line.Section,
		&line.Activity,
		&budget,
		&approvedContract,
		&line.ContractAwarded,
		&line.Locked,
		&line.Position,
		&line.Note,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return CostLine{}, err
	}
	line.Budget = money.Cents(budget)
	line.ApprovedContract = money.Cents(approvedContract)
	if line.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return CostLine{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if line.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return CostLine{}, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return line, nil
}
