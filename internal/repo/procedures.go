package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fiscalops/internal/domain"
)

type ProcedureFilters struct {
	ClientID string
	Status   string
	Limit    int
}

// The aggregate is stored whole in body_json; the other columns exist for
// filtering and the version check.
func (r Repo) InsertProcedureTx(ctx context.Context, tx *sql.Tx, p domain.Procedure) error {
	if p.Version == 0 {
		p.Version = 1
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal procedure: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO procedures(id,client_id,name,status,procedure_type,complexity,completion_percentage,body_json,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ClientID, p.Name, p.Status, p.ProcedureType, p.Complexity, p.CompletionPercentage,
		string(body), p.Version, formatTS(p.CreatedAt), formatTS(p.UpdatedAt))
	return err
}

// UpdateProcedureTx writes p if the stored version still equals p.Version and
// bumps p.Version on success.
func (r Repo) UpdateProcedureTx(ctx context.Context, tx *sql.Tx, p *domain.Procedure) error {
	next := *p
	next.Version = p.Version + 1
	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal procedure: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE procedures SET name=?,status=?,completion_percentage=?,body_json=?,version=?,updated_at=? WHERE id=? AND version=?`,
		p.Name, p.Status, p.CompletionPercentage, string(body), next.Version, formatTS(p.UpdatedAt), p.ID, p.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM procedures WHERE id=?`, p.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.NotFound("procedure", p.ID)
		}
		return fmt.Errorf("procedure %s at version %d: %w", p.ID, p.Version, ErrVersionConflict)
	}
	p.Version = next.Version
	return nil
}

func scanProcedure(row rowScanner) (domain.Procedure, error) {
	var (
		p       domain.Procedure
		body    string
		version int
	)
	if err := row.Scan(&body, &version); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return p, fmt.Errorf("decode procedure: %w", err)
	}
	p.Version = version
	return p, nil
}

func (r Repo) GetProcedure(ctx context.Context, id string) (domain.Procedure, error) {
	p, err := scanProcedure(r.DB.QueryRowContext(ctx, `SELECT body_json,version FROM procedures WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, domain.NotFound("procedure", id)
	}
	return p, err
}

func (r Repo) ListProcedures(ctx context.Context, f ProcedureFilters) ([]domain.Procedure, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT body_json,version FROM procedures ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Procedure{}
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountProceduresByStatus is used for the status gauges.
func (r Repo) CountProceduresByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM procedures GROUP BY status`)
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
