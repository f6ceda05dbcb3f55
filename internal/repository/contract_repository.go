package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	// ErrVersionConflict возвращается, когда контракт был изменён
	// конкурентно: CAS по колонке version не нашёл строку.
	ErrVersionConflict = errors.New("contract was modified concurrently")
	ErrAlreadyReviewed = errors.New("review already submitted for this contract")
)

type ContractRepository struct {
	db *sqlx.DB
}

func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create сохраняет контракт вместе с вехами в одной транзакции.
func (r *ContractRepository) Create(ctx context.Context, c *models.Contract) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO contracts (
			contract_id, client_id, client_wallet, freelancer_id, freelancer_wallet,
			scope_of_work, deliverables, termination_policy, confidentiality,
			ownership_transfer, allowed_revisions, total_amount, status, freelancer_accepted
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, version, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		c.ContractID, c.ClientID, c.ClientWallet, c.FreelancerID, c.FreelancerWallet,
		c.ScopeOfWork, c.Deliverables, c.TerminationPolicy, c.Confidentiality,
		c.OwnershipTransfer, c.AllowedRevisions, c.TotalAmount, c.Status, c.FreelancerAccepted,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}

	if err := insertMilestones(ctx, tx, c.ID, c.Milestones); err != nil {
		return err
	}
	for i := range c.Milestones {
		c.Milestones[i].ContractID = c.ID
	}

	return tx.Commit()
}

// GetByID возвращает контракт с вехами.
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := r.db.GetContext(ctx, &c, `SELECT * FROM contracts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &c.Milestones,
		`SELECT * FROM milestones WHERE contract_id = $1 ORDER BY idx`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByParticipant возвращает контракты, где пользователь — одна из сторон.
func (r *ContractRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Contract, error) {
	var contracts []models.Contract
	err := r.db.SelectContext(ctx, &contracts, `
		SELECT * FROM contracts
		WHERE client_id = $1 OR freelancer_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	for i := range contracts {
		if err := r.db.SelectContext(ctx, &contracts[i].Milestones,
			`SELECT * FROM milestones WHERE contract_id = $1 ORDER BY idx`, contracts[i].ID); err != nil {
			return nil, err
		}
	}
	return contracts, nil
}

// SetAccepted выставляет флаг согласия фрилансера.
func (r *ContractRepository) SetAccepted(ctx context.Context, id uuid.UUID, version int) error {
	return r.execCAS(ctx, `
		UPDATE contracts
		SET freelancer_accepted = TRUE, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, version)
}

// SetStatus переводит контракт в новый статус.
func (r *ContractRepository) SetStatus(ctx context.Context, id uuid.UUID, status string, version int) error {
	return r.execCAS(ctx, `
		UPDATE contracts
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, version, status)
}

// SetRevisionFeedback сохраняет замечания фрилансера дословно.
func (r *ContractRepository) SetRevisionFeedback(ctx context.Context, id uuid.UUID, feedback string, version int) error {
	return r.execCAS(ctx, `
		UPDATE contracts
		SET revision_feedback = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, version, feedback)
}

// UpdateTerms перезаписывает условия контракта и вехи целиком, пересчитанный
// total_amount и сброшенный revision_feedback берутся из переданной модели.
func (r *ContractRepository) UpdateTerms(ctx context.Context, c *models.Contract) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contracts
		SET scope_of_work = $3, deliverables = $4, termination_policy = $5,
		    confidentiality = $6, ownership_transfer = $7, allowed_revisions = $8,
		    total_amount = $9, revision_feedback = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, c.ID, c.Version, c.ScopeOfWork, c.Deliverables, c.TerminationPolicy,
		c.Confidentiality, c.OwnershipTransfer, c.AllowedRevisions, c.TotalAmount)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE contract_id = $1`, c.ID); err != nil {
		return err
	}
	if err := insertMilestones(ctx, tx, c.ID, c.Milestones); err != nil {
		return err
	}

	return tx.Commit()
}

// SetOnchain фиксирует результат регистрации эскроу.
func (r *ContractRepository) SetOnchain(ctx context.Context, id uuid.UUID, onchainID, status string, version int) error {
	return r.execCAS(ctx, `
		UPDATE contracts
		SET onchain_id = $3, status = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, version, onchainID, status)
}

// ApplyChainState перезаписывает статус контракта и статусы вех состоянием,
// наблюдённым on-chain. Вызывается только из sync; без CAS — повторное
// применение одного и того же состояния идемпотентно.
func (r *ContractRepository) ApplyChainState(ctx context.Context, id uuid.UUID, status string, milestoneStatuses []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contracts
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrContractNotFound
	}

	for idx, ms := range milestoneStatuses {
		if _, err := tx.ExecContext(ctx,
			`UPDATE milestones SET status = $3 WHERE contract_id = $1 AND idx = $2`,
			id, idx, ms); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetReview записывает отзыв в слот, соответствующий рецензируемой роли.
// Повторная запись в занятый слот отклоняется на уровне SQL.
func (r *ContractRepository) SetReview(ctx context.Context, id uuid.UUID, reviewedRole string, rating int, comment *string) error {
	var query string
	switch reviewedRole {
	case models.RoleClient:
		query = `
			UPDATE contracts
			SET client_rating = $2, client_comment = $3, client_reviewed_at = NOW(),
			    version = version + 1, updated_at = NOW()
			WHERE id = $1 AND client_rating IS NULL
		`
	case models.RoleFreelancer:
		query = `
			UPDATE contracts
			SET freelancer_rating = $2, freelancer_comment = $3, freelancer_reviewed_at = NOW(),
			    version = version + 1, updated_at = NOW()
			WHERE id = $1 AND freelancer_rating IS NULL
		`
	default:
		return ErrContractNotFound
	}

	res, err := r.db.ExecContext(ctx, query, id, rating, comment)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyReviewed
	}
	return nil
}

func (r *ContractRepository) execCAS(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func insertMilestones(ctx context.Context, tx *sqlx.Tx, contractID uuid.UUID, milestones []models.Milestone) error {
	for i, m := range milestones {
		status := m.Status
		if status == "" {
			status = models.MilestoneStatusPending
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO milestones (contract_id, idx, description, amount, status)
			VALUES ($1, $2, $3, $4, $5)
		`, contractID, i, m.Description, m.Amount, status); err != nil {
			return err
		}
	}
	return nil
}
