package repo

import (
	"context"
	"database/sql"

	"staffline/internal/domain"
)

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	langs, err := marshalSet(a.Languages)
	if err != nil {
		return err
	}
	exp, err := marshalSet(a.Expertise)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO actors(id,kind,profile_id,seniority,languages_json,expertise_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.Kind, a.ProfileID, a.Seniority, langs, exp, a.CreatedAt)
	return err
}

// EnsureAIActor registers the AI actor for a profile if missing. The actor id
// equals the profile id; capabilities cover the full catalog vocabularies so
// the AI resource is never excluded on language or expertise grounds.
func (r Repo) EnsureAIActor(ctx context.Context, tx *sql.Tx, profileID string, languages, expertise []string, now string) error {
	langs, err := marshalSet(languages)
	if err != nil {
		return err
	}
	exp, err := marshalSet(expertise)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,kind,profile_id,seniority,languages_json,expertise_json,created_at)
VALUES (?,?,?,?,?,?,?)`, profileID, domain.ActorAI, profileID, "senior", langs, exp, now)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	var langs, exp sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,kind,profile_id,seniority,languages_json,expertise_json,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Kind, &a.ProfileID, &a.Seniority, &langs, &exp, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Languages = unmarshalSet(langs)
	a.Expertise = unmarshalSet(exp)
	return a, nil
}

type ActorFilters struct {
	Kind      string
	ProfileID string
}

func (r Repo) ListActors(ctx context.Context, f ActorFilters) ([]domain.Actor, error) {
	query := `SELECT id,kind,profile_id,seniority,languages_json,expertise_json,created_at FROM actors`
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.ProfileID != "" {
		clauses = append(clauses, "profile_id=?")
		args = append(args, f.ProfileID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at ASC, id ASC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var langs, exp sql.NullString
		if err := rows.Scan(&a.ID, &a.Kind, &a.ProfileID, &a.Seniority, &langs, &exp, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Languages = unmarshalSet(langs)
		a.Expertise = unmarshalSet(exp)
		res = append(res, a)
	}
	return res, rows.Err()
}
