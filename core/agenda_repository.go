package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgendaItem is one row of olive_agenda. Label is stored as change_name.
type AgendaItem struct {
	ID       int64
	ImageURL string
	Month    string
	Label    string
}

// AgendaRepository persists agenda items. Update and Delete return ErrAgendaNotFound
// when the id does not exist.
type AgendaRepository interface {
	List(ctx context.Context) ([]AgendaItem, error)
	Create(ctx context.Context, imageURL, month, label string) (*AgendaItem, error)
	Update(ctx context.Context, id int64, imageURL, month, label string) (*AgendaItem, error)
	Delete(ctx context.Context, id int64) error
}

type PgAgendaRepository struct {
	db *pgxpool.Pool
}

func NewPgAgendaRepository(db *pgxpool.Pool) *PgAgendaRepository {
	return &PgAgendaRepository{db: db}
}

func (r *PgAgendaRepository) List(ctx context.Context) ([]AgendaItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, image_url, month, change_name FROM olive_agenda ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []AgendaItem{}
	for rows.Next() {
		var a AgendaItem
		if err := rows.Scan(&a.ID, &a.ImageURL, &a.Month, &a.Label); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *PgAgendaRepository) Create(ctx context.Context, imageURL, month, label string) (*AgendaItem, error) {
	const q = `INSERT INTO olive_agenda (image_url, month, change_name) VALUES ($1,$2,$3) RETURNING id`
	a := AgendaItem{ImageURL: imageURL, Month: month, Label: label}
	if err := r.db.QueryRow(ctx, q, imageURL, month, label).Scan(&a.ID); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgAgendaRepository) Update(ctx context.Context, id int64, imageURL, month, label string) (*AgendaItem, error) {
	const q = `UPDATE olive_agenda SET image_url=$1, month=$2, change_name=$3 WHERE id=$4 RETURNING id`
	a := AgendaItem{ImageURL: imageURL, Month: month, Label: label}
	if err := r.db.QueryRow(ctx, q, imageURL, month, label, id).Scan(&a.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgendaNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgAgendaRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM olive_agenda WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAgendaNotFound
	}
	return nil
}
