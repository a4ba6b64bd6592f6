package repo

import (
	"context"
	"database/sql"

	"staffline/internal/domain"
)

func (r Repo) UpsertProfileTx(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO profiles(id,name,ai_backed,description,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, ai_backed=excluded.ai_backed, description=excluded.description`,
		p.ID, p.Name, boolToInt(p.AIBacked), nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	var desc sql.NullString
	var ai int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,ai_backed,description,created_at FROM profiles WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &ai, &desc, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.AIBacked = ai != 0
	if desc.Valid {
		p.Description = desc.String
	}
	return p, nil
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,ai_backed,COALESCE(description,''),created_at FROM profiles ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		var p domain.Profile
		var ai int
		if err := rows.Scan(&p.ID, &p.Name, &ai, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.AIBacked = ai != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
