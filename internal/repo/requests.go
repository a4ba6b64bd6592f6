package repo

import (
	"context"
	"database/sql"
	"strings"

	"staffline/internal/domain"
)

const requestColumns = `id,project_id,profile_id,seniority,required_languages_json,required_expertise_json,bound_actor_id,status,is_ai_request,created_at,updated_at`

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.RoleRequest) error {
	langs, err := marshalSet(req.RequiredLanguages)
	if err != nil {
		return err
	}
	exp, err := marshalSet(req.RequiredExpertise)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO role_requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.ProjectID, req.ProfileID, req.Seniority, langs, exp,
		nullableStringPtr(req.BoundActorID), req.Status, boolToInt(req.IsAIRequest), req.CreatedAt, req.UpdatedAt)
	return err
}

func scanRequest(scan func(dest ...any) error) (domain.RoleRequest, error) {
	var req domain.RoleRequest
	var langs, exp, bound sql.NullString
	var ai int
	err := scan(&req.ID, &req.ProjectID, &req.ProfileID, &req.Seniority, &langs, &exp, &bound, &req.Status, &ai, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	req.RequiredLanguages = unmarshalSet(langs)
	req.RequiredExpertise = unmarshalSet(exp)
	if bound.Valid {
		req.BoundActorID = &bound.String
	}
	req.IsAIRequest = ai != 0
	return req, nil
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.RoleRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM role_requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.RoleRequest, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM role_requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

type RequestFilters struct {
	ProjectID       string
	Status          string
	ProfileID       string
	BoundActorID    string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.RoleRequest, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ProfileID != "" {
		clauses = append(clauses, "profile_id=?")
		args = append(args, f.ProfileID)
	}
	if f.BoundActorID != "" {
		clauses = append(clauses, "bound_actor_id=?")
		args = append(args, f.BoundActorID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at > ? OR (created_at = ? AND id > ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM role_requests ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryRequests(ctx, query, args...)
}

// ListOpenRequests returns searching, unbound requests for a profile and
// seniority in creation order. Language and expertise superset checks happen
// in the matcher; the store only narrows on the indexed columns.
func (r Repo) ListOpenRequests(ctx context.Context, profileID, seniority string) ([]domain.RoleRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM role_requests
WHERE status=? AND bound_actor_id IS NULL AND profile_id=? AND seniority=?
ORDER BY created_at ASC, id ASC`
	return r.queryRequests(ctx, query, domain.StatusSearching, profileID, seniority)
}

func (r Repo) queryRequests(ctx context.Context, query string, args ...any) ([]domain.RoleRequest, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RoleRequest
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// BindRequest performs the compare-and-swap accept: the row is only mutated if
// it is still searching and unbound. Returns false when another actor won.
func (r Repo) BindRequest(ctx context.Context, tx *sql.Tx, id, actorID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE role_requests SET bound_actor_id=?, status=?, updated_at=?
WHERE id=? AND status=? AND bound_actor_id IS NULL`,
		actorID, domain.StatusAccepted, now, id, domain.StatusSearching)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReleaseRequest reopens an accepted request bound to actorID. With actorID
// empty the binding check is skipped (auditor/override path).
func (r Repo) ReleaseRequest(ctx context.Context, tx *sql.Tx, id, actorID, now string) (bool, error) {
	query := `UPDATE role_requests SET bound_actor_id=NULL, status=?, updated_at=? WHERE id=? AND status=?`
	args := []any{domain.StatusSearching, now, id, domain.StatusAccepted}
	if actorID != "" {
		query += ` AND bound_actor_id=?`
		args = append(args, actorID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ActivateRequest moves a draft request into searching.
func (r Repo) ActivateRequest(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE role_requests SET status=?, updated_at=? WHERE id=? AND status=?`,
		domain.StatusSearching, now, id, domain.StatusDraft)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// WithdrawRequest moves a searching or accepted request into the terminal
// declined state and clears any binding.
func (r Repo) WithdrawRequest(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE role_requests SET bound_actor_id=NULL, status=?, updated_at=?
WHERE id=? AND status IN (?,?)`,
		domain.StatusDeclined, now, id, domain.StatusSearching, domain.StatusAccepted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DemoteOrphan reverts an accepted row with no binding back to searching. The
// status/bound predicate re-checks the violation inside the transaction so a
// racing accept is never clobbered.
func (r Repo) DemoteOrphan(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE role_requests SET status=?, updated_at=?
WHERE id=? AND status=? AND bound_actor_id IS NULL`,
		domain.StatusSearching, now, id, domain.StatusAccepted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListViolations enumerates rows breaking the store invariants: accepted with
// no binding, AI requests left searching, and AI requests bound to anything
// other than their own profile id.
func (r Repo) ListViolations(ctx context.Context) ([]domain.Violation, error) {
	query := `SELECT id,project_id,profile_id,status,bound_actor_id,is_ai_request FROM role_requests
WHERE (status=? AND bound_actor_id IS NULL)
   OR (is_ai_request=1 AND status=?)
   OR (is_ai_request=1 AND status=? AND bound_actor_id IS NOT NULL AND bound_actor_id != profile_id)
ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, domain.StatusAccepted, domain.StatusSearching, domain.StatusAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Violation
	for rows.Next() {
		var v domain.Violation
		var bound sql.NullString
		var ai int
		if err := rows.Scan(&v.RequestID, &v.ProjectID, &v.ProfileID, &v.Status, &bound, &ai); err != nil {
			return nil, err
		}
		if bound.Valid {
			v.BoundActorID = &bound.String
		}
		switch {
		case v.Status == domain.StatusAccepted && !bound.Valid:
			v.Kind = domain.ViolationOrphanAccepted
		case ai != 0 && v.Status == domain.StatusSearching:
			v.Kind = domain.ViolationAIUnbound
		default:
			v.Kind = domain.ViolationAIMisbound
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) CountRequestsByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM role_requests WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
