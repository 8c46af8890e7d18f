package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// activationLockKey serializes template activation across api and worker processes.
const activationLockKey int64 = 2026101601

type TemplateRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db, now: time.Now}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *domain.Template) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO templates (id, name, version, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, tpl.ID, tpl.Name, tpl.Version, tpl.IsActive, tpl.CreatedAt, tpl.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.WrapError(domain.ErrConflict, "insert template", err)
			}
			return fmt.Errorf("insert template: %w", err)
		}
		for i := range tpl.Fields {
			if err := insertField(ctx, tx, &tpl.Fields[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, version, is_active, created_at, updated_at
FROM templates
WHERE id = $1
`, id)
	return r.load(ctx, row, fmt.Sprintf("id=%s", id))
}

func (r *TemplateRepository) GetActive(ctx context.Context) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, version, is_active, created_at, updated_at
FROM templates
WHERE is_active
`)
	return r.load(ctx, row, "no active template")
}

func (r *TemplateRepository) load(ctx context.Context, row *sql.Row, missing string) (*domain.Template, error) {
	var tpl domain.Template
	if err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Version, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTemplateNotFound, "get template", errors.New(missing))
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	fields, err := listFields(ctx, r.db, tpl.ID)
	if err != nil {
		return nil, err
	}
	tpl.Fields = fields
	return &tpl, nil
}

// List returns templates without their fields, newest first.
func (r *TemplateRepository) List(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, version, is_active, created_at, updated_at
FROM templates
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Template, 0)
	for rows.Next() {
		var tpl domain.Template
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Version, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

// Delete removes an inactive template. The active template is refused with
// ErrConflict so readers never observe zero active templates.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, activationLockKey); err != nil {
			return fmt.Errorf("acquire activation lock: %w", err)
		}
		var active bool
		err := tx.QueryRowContext(ctx, `SELECT is_active FROM templates WHERE id = $1 FOR UPDATE`, id).Scan(&active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.WrapError(domain.ErrTemplateNotFound, "delete template", fmt.Errorf("id=%s", id))
			}
			return fmt.Errorf("lock template: %w", err)
		}
		if active {
			return domain.WrapError(domain.ErrConflict, "delete template", fmt.Errorf("template %s is active", id))
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = $1 AND NOT is_active`, id)
		if err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		return expectRow(res, domain.ErrTemplateNotFound, "delete template", id)
	})
}

// SetActive deactivates every other template and activates id in one
// transaction. An unknown id leaves the current active template untouched.
func (r *TemplateRepository) SetActive(ctx context.Context, id string) error {
	now := r.now().UTC()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, activationLockKey); err != nil {
			return fmt.Errorf("acquire activation lock: %w", err)
		}
		var found string
		err := tx.QueryRowContext(ctx, `SELECT id FROM templates WHERE id = $1 FOR UPDATE`, id).Scan(&found)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.WrapError(domain.ErrTemplateNotFound, "activate template", fmt.Errorf("id=%s", id))
			}
			return fmt.Errorf("lock template: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE templates SET is_active = FALSE, updated_at = $2
WHERE is_active AND id <> $1
`, id, now); err != nil {
			return fmt.Errorf("deactivate templates: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE templates SET is_active = TRUE, updated_at = $2
WHERE id = $1
`, id, now); err != nil {
			return fmt.Errorf("activate template: %w", err)
		}
		return nil
	})
}

func (r *TemplateRepository) AddField(ctx context.Context, field *domain.FieldDefinition) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, field.TemplateID); err != nil {
			return err
		}
		return insertField(ctx, tx, field)
	})
}

func (r *TemplateRepository) UpdateField(ctx context.Context, field *domain.FieldDefinition) error {
	rulesJSON, defaultJSON, err := marshalField(field)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, field.TemplateID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
UPDATE template_fields
SET label = $3, section = $4, description = $5, required = $6, extraction_rules = $7, default_value = $8
WHERE template_id = $1 AND field_name = $2
`,
			field.TemplateID, field.Name, field.Label, field.Section, field.Description, field.Required,
			rulesJSON, nullableJSON(defaultJSON),
		)
		if err != nil {
			return fmt.Errorf("update field: %w", err)
		}
		return expectRow(res, domain.ErrFieldNotFound, "update field", field.Name)
	})
}

func (r *TemplateRepository) DeleteField(ctx context.Context, templateID, name string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.bumpVersion(ctx, tx, templateID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
DELETE FROM template_fields WHERE template_id = $1 AND field_name = $2
`, templateID, name)
		if err != nil {
			return fmt.Errorf("delete field: %w", err)
		}
		return expectRow(res, domain.ErrFieldNotFound, "delete field", name)
	})
}

func (r *TemplateRepository) bumpVersion(ctx context.Context, q queryer, templateID string) error {
	res, err := q.ExecContext(ctx, `
UPDATE templates SET version = version + 1, updated_at = $2
WHERE id = $1
`, templateID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("bump template version: %w", err)
	}
	return expectRow(res, domain.ErrTemplateNotFound, "bump template version", templateID)
}

func insertField(ctx context.Context, q queryer, field *domain.FieldDefinition) error {
	rulesJSON, defaultJSON, err := marshalField(field)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO template_fields (
	id, template_id, field_name, label, section, description, required, position, extraction_rules, default_value
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		field.ID, field.TemplateID, field.Name, field.Label, field.Section, field.Description,
		field.Required, field.Position, rulesJSON, nullableJSON(defaultJSON),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert field", fmt.Errorf("field %q already exists", field.Name))
		}
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

func listFields(ctx context.Context, q queryer, templateID string) ([]domain.FieldDefinition, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, template_id, field_name, label, section, description, required, position, extraction_rules, default_value
FROM template_fields
WHERE template_id = $1
ORDER BY position ASC, field_name ASC
`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FieldDefinition, 0)
	for rows.Next() {
		var (
			f                    domain.FieldDefinition
			rulesRaw, defaultRaw []byte
		)
		if err := rows.Scan(
			&f.ID, &f.TemplateID, &f.Name, &f.Label, &f.Section, &f.Description,
			&f.Required, &f.Position, &rulesRaw, &defaultRaw,
		); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		if err := json.Unmarshal(rulesRaw, &f.Rule); err != nil {
			return nil, fmt.Errorf("unmarshal extraction rules for %s: %w", f.Name, err)
		}
		if len(defaultRaw) > 0 {
			if err := json.Unmarshal(defaultRaw, &f.Default); err != nil {
				return nil, fmt.Errorf("unmarshal default for %s: %w", f.Name, err)
			}
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return out, nil
}

func marshalField(field *domain.FieldDefinition) ([]byte, []byte, error) {
	rulesJSON, err := json.Marshal(field.Rule)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal extraction rules: %w", err)
	}
	defaultJSON, err := json.Marshal(field.Default)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal field default: %w", err)
	}
	return rulesJSON, defaultJSON, nil
}

func expectRow(res sql.Result, kind error, op, key string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, op, fmt.Errorf("key=%s", key))
	}
	return nil
}
