// Package repository contains the PostgreSQL data access layer.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hudumahub/huduma-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateSlug is returned when a service slug collides with a
	// different service.
	ErrDuplicateSlug = errors.New("service slug already in use")
	// ErrPaymentRefAlreadySet is returned when an application already
	// carries a payment reference; the reference is set at most once.
	ErrPaymentRefAlreadySet = errors.New("payment reference already set")
)

// PostgresRepository provides access to the data store in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the repository and initializes the
// schema through embedded migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// UpsertService saves a service definition keyed by id. Slug uniqueness
// is enforced across all services.
func (r *PostgresRepository) UpsertService(ctx context.Context, def model.ServiceDefinition) (*model.ServiceDefinition, error) {
	requirements, err := json.Marshal(def.Requirements)
	if err != nil {
		return nil, fmt.Errorf("marshal requirements: %w", err)
	}
	fields, err := json.Marshal(def.FieldSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal field schema: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO services (id, slug, category, title, description, base_cost, platform_fee, requirements, turnaround, form_fields)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   slug = EXCLUDED.slug,
		   category = EXCLUDED.category,
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   base_cost = EXCLUDED.base_cost,
		   platform_fee = EXCLUDED.platform_fee,
		   requirements = EXCLUDED.requirements,
		   turnaround = EXCLUDED.turnaround,
		   form_fields = EXCLUDED.form_fields,
		   updated_at = now()`,
		def.ID, def.Slug, def.Category, def.Title, def.Description,
		def.BaseCost, def.PlatformFee, requirements, def.Turnaround, fields,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSlug, def.Slug)
		}
		return nil, fmt.Errorf("upsert service: %w", err)
	}

	return &def, nil
}

// GetServiceBySlug returns the operator-edited service with the given
// slug. The boolean reports whether an override exists; its absence is
// not an error because the caller falls back to the bundled defaults.
func (r *PostgresRepository) GetServiceBySlug(ctx context.Context, slug string) (*model.ServiceDefinition, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, slug, category, title, description, base_cost, platform_fee, requirements, turnaround, form_fields
		 FROM services
		 WHERE slug = $1`,
		slug,
	)

	def, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get service: %w", err)
	}

	return def, true, nil
}

// ListServices returns every operator-edited service ordered by category.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]model.ServiceDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, slug, category, title, description, base_cost, platform_fee, requirements, turnaround, form_fields
		 FROM services
		 ORDER BY category, title`,
	)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var res []model.ServiceDefinition
	for rows.Next() {
		def, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		res = append(res, *def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteService removes a service definition by id.
func (r *PostgresRepository) DeleteService(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*model.ServiceDefinition, error) {
	var (
		def          model.ServiceDefinition
		requirements []byte
		fields       []byte
	)

	err := row.Scan(&def.ID, &def.Slug, &def.Category, &def.Title, &def.Description,
		&def.BaseCost, &def.PlatformFee, &requirements, &def.Turnaround, &fields)
	if err != nil {
		return nil, err
	}

	if len(requirements) > 0 {
		if err := json.Unmarshal(requirements, &def.Requirements); err != nil {
			return nil, fmt.Errorf("unmarshal requirements: %w", err)
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &def.FieldSchema); err != nil {
			return nil, fmt.Errorf("unmarshal field schema: %w", err)
		}
	}

	return &def, nil
}

// CreateApplication persists a new application and returns its generated
// id. The caller must have validated the record; this is the single
// write of the submission pipeline.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app *model.Application) (string, error) {
	id := uuid.NewString()

	fieldValues, err := json.Marshal(app.FieldValues)
	if err != nil {
		return "", fmt.Errorf("marshal field values: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO applications (id, user_id, service_id, service_title, applicant_name, applicant_phone, applicant_id_number, amount_due, status, admin_notes, field_values)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, app.UserID, app.ServiceRef, app.ServiceTitleSnapshot,
		app.Applicant.FullName, app.Applicant.PhoneNumber, app.Applicant.NationalIDNumber,
		app.AmountDue, string(app.Status), app.OperatorNotes, fieldValues,
	)
	if err != nil {
		return "", fmt.Errorf("insert application: %w", err)
	}

	return id, nil
}

const applicationColumns = `id, user_id, service_id, service_title, applicant_name, applicant_phone, applicant_id_number, amount_due, status, admin_notes, field_values, documents, payment_ref, submitted_at`

// GetApplicationByID returns one application.
func (r *PostgresRepository) GetApplicationByID(ctx context.Context, id string) (*model.Application, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}

	return app, nil
}

// GetApplicationByPaymentRef resolves the application a gateway callback
// belongs to.
func (r *PostgresRepository) GetApplicationByPaymentRef(ctx context.Context, ref string) (*model.Application, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE payment_ref = $1`, ref)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get application by payment ref: %w", err)
	}

	return app, nil
}

// ListApplications returns every application, newest first, for the
// operator view.
func (r *PostgresRepository) ListApplications(ctx context.Context) ([]model.Application, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	var res []model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, *app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetPaymentRef stores the gateway's correlation token on an
// application. The token is set at most once.
func (r *PostgresRepository) SetPaymentRef(ctx context.Context, id, ref string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE applications SET payment_ref = $2 WHERE id = $1 AND payment_ref IS NULL`,
		id, ref,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrPaymentRefAlreadySet, ref)
		}
		return fmt.Errorf("set payment ref: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check application: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrPaymentRefAlreadySet
	}

	return nil
}

// ApplyPaymentOutcome transitions the status and appends the system note
// in one write so a racing operator update cannot split them.
func (r *PostgresRepository) ApplyPaymentOutcome(ctx context.Context, id string, status model.ApplicationStatus, noteAppend string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE applications SET status = $2, admin_notes = admin_notes || $3 WHERE id = $1`,
		id, string(status), noteAppend,
	)
	if err != nil {
		return fmt.Errorf("apply payment outcome: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusAndNotes applies an operator edit. Either part may be nil
// to leave it unchanged; when both are present they land in one write.
func (r *PostgresRepository) UpdateStatusAndNotes(ctx context.Context, id string, status *model.ApplicationStatus, notes *string) error {
	var statusParam, notesParam *string
	if status != nil {
		s := string(*status)
		statusParam = &s
	}
	if notes != nil {
		notesParam = notes
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE applications
		 SET status = COALESCE($2, status),
		     admin_notes = COALESCE($3, admin_notes)
		 WHERE id = $1`,
		id, statusParam, notesParam,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanApplication(row rowScanner) (*model.Application, error) {
	var (
		app         model.Application
		status      string
		fieldValues []byte
		documents   []byte
		paymentRef  *string
	)

	err := row.Scan(&app.ID, &app.UserID, &app.ServiceRef, &app.ServiceTitleSnapshot,
		&app.Applicant.FullName, &app.Applicant.PhoneNumber, &app.Applicant.NationalIDNumber,
		&app.AmountDue, &status, &app.OperatorNotes, &fieldValues, &documents, &paymentRef, &app.SubmittedAt)
	if err != nil {
		return nil, err
	}

	app.Status = model.ApplicationStatus(status)
	if paymentRef != nil {
		app.PaymentRef = *paymentRef
	}

	values, err := normalizeFieldValues(fieldValues, documents)
	if err != nil {
		return nil, err
	}
	app.FieldValues = values

	return &app, nil
}

// normalizeFieldValues reconciles the historical storage shapes of an
// application's field values at the storage boundary. Current rows hold
// tagged {kind, value} objects; older rows hold bare strings, and the
// oldest keep uploaded files in a separate documents array.
func normalizeFieldValues(fieldValues, documents []byte) (map[string]model.FieldValue, error) {
	res := make(map[string]model.FieldValue)

	if len(fieldValues) > 0 {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(fieldValues, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal field values: %w", err)
		}
		for key, rawValue := range raw {
			var tagged model.FieldValue
			if err := json.Unmarshal(rawValue, &tagged); err == nil && tagged.Kind != "" {
				res[key] = tagged
				continue
			}

			var s string
			if err := json.Unmarshal(rawValue, &s); err != nil {
				// Non-string legacy value (number, bool); keep its JSON form.
				res[key] = model.FieldValue{Kind: model.FieldKindText, Value: string(rawValue)}
				continue
			}
			kind := model.FieldKindText
			if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
				kind = model.FieldKindFile
			}
			res[key] = model.FieldValue{Kind: kind, Value: s}
		}
	}

	if len(documents) > 0 {
		var docs []string
		if err := json.Unmarshal(documents, &docs); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
		for i, url := range docs {
			res[fmt.Sprintf("document_%d", i+1)] = model.FieldValue{Kind: model.FieldKindFile, Value: url}
		}
	}

	return res, nil
}
