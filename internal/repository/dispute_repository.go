package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Open создаёт спор и переводит контракт в disputed в одной транзакции:
// либо контракт заморожен и спор существует, либо не произошло ничего.
// CAS по версии контракта; при конкурентном изменении — ErrVersionConflict.
func (r *DisputeRepository) Open(ctx context.Context, d *models.Dispute, contractVersion int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contracts
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, d.ContractID, contractVersion, models.ContractStatusDisputed)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	query := `
		INSERT INTO disputes (contract_id, raised_by, raised_by_role, against, reason, description, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	if err := tx.QueryRowContext(ctx, query,
		d.ContractID, d.RaisedBy, d.RaisedByRole, d.Against, d.Reason, d.Description, d.Status, d.Priority,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// GetUnresolvedByContract возвращает открытый или рассматриваемый спор
// по контракту, если такой есть.
func (r *DisputeRepository) GetUnresolvedByContract(ctx context.Context, contractID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes
		WHERE contract_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC LIMIT 1
	`, contractID, models.DisputeStatusOpen, models.DisputeStatusUnderReview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// ListByUser возвращает споры, где пользователь — инициатор или ответчик.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE raised_by = $1 OR against = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// ListAll возвращает споры для админского триажа, сперва критичные.
func (r *DisputeRepository) ListAll(ctx context.Context, status string, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	query := `
		SELECT * FROM disputes
		WHERE ($1 = '' OR status = $1)
		ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &disputes, query, status, limit, offset)
	return disputes, err
}

func (r *DisputeRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE disputes SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

// Resolve записывает решение администратора и переводит контракт в итоговый
// статус в одной транзакции. CAS по версии контракта: при конкурентном
// изменении транзакция откатывается целиком и спор остаётся нерешённым.
func (r *DisputeRepository) Resolve(ctx context.Context, d *models.Dispute, contractStatus string, contractVersion int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contracts
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, d.ContractID, contractVersion, contractStatus)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution_type = $3, resolution_amount = $4,
		    resolution_notes = $5, resolved_by = $6, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, d.ID, d.Status, d.ResolutionType, d.ResolutionAmount, d.ResolutionNotes, d.ResolvedBy)
	if err != nil {
		return err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotFound
	}

	return tx.Commit()
}
