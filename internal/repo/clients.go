package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"fiscalops/internal/domain"
)

const clientColumns = `id,name,entity_type,sector,regime,annual_revenue,employee_count,founded_at,has_tax_id,created_at,updated_at`

type ClientFilters struct {
	EntityType string
	Limit      int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.ClientProfile, error) {
	var (
		c                    domain.ClientProfile
		sector, founded      sql.NullString
		hasTaxID             int
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.EntityType, &sector, &c.Regime, &c.AnnualRevenue, &c.EmployeeCount,
		&founded, &hasTaxID, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	c.Sector = sector.String
	c.HasTaxID = hasTaxID != 0
	if founded.Valid {
		t, err := parseTS(founded.String)
		if err != nil {
			return c, err
		}
		c.FoundedAt = &t
	}
	var err error
	if c.CreatedAt, err = parseTS(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) InsertClientTx(ctx context.Context, tx *sql.Tx, c domain.ClientProfile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO clients(`+clientColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.EntityType, nullable(c.Sector), c.Regime, c.AnnualRevenue, c.EmployeeCount,
		nullableTime(c.FoundedAt), boolInt(c.HasTaxID), formatTS(c.CreatedAt), formatTS(c.UpdatedAt))
	return err
}

func (r Repo) UpdateClientTx(ctx context.Context, tx *sql.Tx, c domain.ClientProfile) error {
	res, err := tx.ExecContext(ctx, `UPDATE clients SET name=?,entity_type=?,sector=?,regime=?,annual_revenue=?,employee_count=?,founded_at=?,has_tax_id=?,updated_at=? WHERE id=?`,
		c.Name, c.EntityType, nullable(c.Sector), c.Regime, c.AnnualRevenue, c.EmployeeCount,
		nullableTime(c.FoundedAt), boolInt(c.HasTaxID), formatTS(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("client", c.ID)
	}
	return nil
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.ClientProfile, error) {
	c, err := scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.NotFound("client", id)
	}
	return c, err
}

func (r Repo) ListClients(ctx context.Context, f ClientFilters) ([]domain.ClientProfile, error) {
	var clauses []string
	var args []any
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, f.EntityType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + clientColumns + ` FROM clients ` + where + ` ORDER BY name ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ClientProfile{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
