package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/paybill-gateway/internal/domain"
)

const uniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

// Open connects through the pgx database/sql driver and checks the connection.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

/*************** tenants ***************/

const tenantCols = `id, name, account_number, api_key, callback_url, created_at, updated_at`

func scanTenant(s scanner) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := s.Scan(&t.ID, &t.Name, &t.AccountNumber, &t.APIKey, &t.CallbackURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (p *Postgres) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	now := time.Now().UTC()
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO tenants (name, account_number, api_key, callback_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		t.Name, t.AccountNumber, t.APIKey, t.CallbackURL, now,
	).Scan(&t.ID)
	if err != nil {
		return mapErr(err)
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

func (p *Postgres) TenantByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx,
		`SELECT `+tenantCols+` FROM tenants WHERE api_key = $1`, apiKey))
}

func (p *Postgres) TenantByAccountNumber(ctx context.Context, accountNumber string) (*domain.Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx,
		`SELECT `+tenantCols+` FROM tenants WHERE account_number = $1`, accountNumber))
}

func (p *Postgres) UpdateTenant(ctx context.Context, t *domain.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := p.db.ExecContext(ctx,
		`UPDATE tenants SET name = $1, callback_url = $2, updated_at = $3 WHERE id = $4`,
		t.Name, t.CallbackURL, t.UpdatedAt, t.ID)
	return requireRow(res, err)
}

/*************** credentials ***************/

const credentialCols = `id, tenant_id, credential_id, name, consumer_key, consumer_secret, short_code, passkey,
	initiator_name, security_credential, environment, is_active, created_at, updated_at`

func scanCredential(s scanner) (*domain.Credential, error) {
	var c domain.Credential
	var env string
	err := s.Scan(&c.ID, &c.TenantID, &c.CredentialID, &c.Name, &c.ConsumerKey, &c.ConsumerSecret,
		&c.ShortCode, &c.Passkey, &c.InitiatorName, &c.SecurityCredential, &env, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	c.Environment = domain.Environment(env)
	return &c, nil
}

func (p *Postgres) CreateCredential(ctx context.Context, c *domain.Credential) error {
	now := time.Now().UTC()
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO credentials (tenant_id, credential_id, name, consumer_key, consumer_secret, short_code,
		  passkey, initiator_name, security_credential, environment, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12) RETURNING id`,
		c.TenantID, c.CredentialID, c.Name, c.ConsumerKey, c.ConsumerSecret, c.ShortCode,
		c.Passkey, c.InitiatorName, c.SecurityCredential, string(c.Environment), c.IsActive, now,
	).Scan(&c.ID)
	if err != nil {
		return mapErr(err)
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

func (p *Postgres) CredentialByID(ctx context.Context, credentialID string) (*domain.Credential, error) {
	return scanCredential(p.db.QueryRowContext(ctx,
		`SELECT `+credentialCols+` FROM credentials WHERE credential_id = $1`, credentialID))
}

func (p *Postgres) CredentialByShortCode(ctx context.Context, shortCode string) (*domain.Credential, error) {
	return scanCredential(p.db.QueryRowContext(ctx,
		`SELECT `+credentialCols+` FROM credentials WHERE short_code = $1
		 ORDER BY is_active DESC, id ASC LIMIT 1`, shortCode))
}

func (p *Postgres) ListCredentials(ctx context.Context, tenantID int64) ([]domain.Credential, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+credentialCols+` FROM credentials WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateCredential(ctx context.Context, c *domain.Credential) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := p.db.ExecContext(ctx,
		`UPDATE credentials SET name = $1, consumer_key = $2, consumer_secret = $3, short_code = $4,
		  passkey = $5, initiator_name = $6, security_credential = $7, environment = $8, is_active = $9,
		  updated_at = $10
		 WHERE id = $11`,
		c.Name, c.ConsumerKey, c.ConsumerSecret, c.ShortCode, c.Passkey, c.InitiatorName,
		c.SecurityCredential, string(c.Environment), c.IsActive, c.UpdatedAt, c.ID)
	return requireRow(res, err)
}

/*************** pending pushes ***************/

const pushCols = `id, credential_ref, merchant_request_id, checkout_request_id, phone_number, account_reference,
	amount, status, result_code, result_desc, receipt_number, created_at, updated_at`

func scanPush(s scanner) (*domain.PendingPush, error) {
	var pp domain.PendingPush
	var status string
	err := s.Scan(&pp.ID, &pp.CredentialRef, &pp.MerchantRequestID, &pp.CheckoutRequestID, &pp.PhoneNumber,
		&pp.AccountReference, &pp.Amount, &status, &pp.ResultCode, &pp.ResultDesc, &pp.ReceiptNumber,
		&pp.CreatedAt, &pp.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	pp.Status = domain.PushStatus(status)
	return &pp, nil
}

func (p *Postgres) CreatePush(ctx context.Context, pp *domain.PendingPush) error {
	now := time.Now().UTC()
	if pp.Status == "" {
		pp.Status = domain.StatusPending
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO pending_pushes (credential_ref, merchant_request_id, checkout_request_id, phone_number,
		  account_reference, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		pp.CredentialRef, pp.MerchantRequestID, pp.CheckoutRequestID, pp.PhoneNumber,
		pp.AccountReference, pp.Amount, string(pp.Status), now,
	).Scan(&pp.ID)
	if err != nil {
		return mapErr(err)
	}
	pp.CreatedAt, pp.UpdatedAt = now, now
	return nil
}

func (p *Postgres) FindPushes(ctx context.Context, merchantRequestID, checkoutRequestID string, limit int) ([]domain.PendingPush, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+pushCols+` FROM pending_pushes
		 WHERE merchant_request_id = $1 AND checkout_request_id = $2 ORDER BY id LIMIT $3`,
		merchantRequestID, checkoutRequestID, limit)
	if err != nil {
		return nil, err
	}
	return collectPushes(rows)
}

func (p *Postgres) ResolvePush(ctx context.Context, id int64, r domain.Resolution, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE pending_pushes SET status = $1, result_code = $2, result_desc = $3,
		  receipt_number = COALESCE($4, receipt_number), updated_at = $5
		 WHERE id = $6 AND status = $7`,
		string(domain.StatusDone), r.ResultCode, r.ResultDesc, r.ReceiptNumber, at, id, string(domain.StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) StalePushes(ctx context.Context, olderThan time.Time, limit int) ([]domain.PendingPush, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+pushCols+` FROM pending_pushes
		 WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		string(domain.StatusPending), olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectPushes(rows)
}

func collectPushes(rows *sql.Rows) ([]domain.PendingPush, error) {
	defer rows.Close()
	var out []domain.PendingPush
	for rows.Next() {
		pp, err := scanPush(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pp)
	}
	return out, rows.Err()
}

/*************** ledger ***************/

const entryCols = `id, credential_ref, transaction_number, amount, first_name, trans_time, account_reference,
	short_code, phone_number, full_name, created_at, updated_at`

func (p *Postgres) CreateEntry(ctx context.Context, e *domain.LedgerEntry) error {
	now := time.Now().UTC()
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO ledger_entries (credential_ref, transaction_number, amount, first_name, trans_time,
		  account_reference, short_code, phone_number, full_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
		e.CredentialRef, e.TransactionNumber, e.Amount, e.FirstName, e.TransTime,
		e.AccountReference, e.ShortCode, e.PhoneNumber, e.FullName, now,
	).Scan(&e.ID)
	if err != nil {
		return mapErr(err)
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

func (p *Postgres) EntriesByTransactionNumber(ctx context.Context, transactionNumber string, limit int) ([]domain.LedgerEntry, error) {
	return p.queryEntries(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE transaction_number = $1 ORDER BY id LIMIT $2`,
		transactionNumber, limit)
}

func (p *Postgres) EnrichEntry(ctx context.Context, id int64, phone string, fullName *string, at time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ledger_entries SET phone_number = $1, full_name = $2, updated_at = $3 WHERE id = $4`,
		phone, fullName, at, id)
	return requireRow(res, err)
}

func (p *Postgres) EntriesByReference(ctx context.Context, credentialRef int64, accountReference string) ([]domain.LedgerEntry, error) {
	return p.queryEntries(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE credential_ref = $1 AND account_reference = $2 ORDER BY id`,
		credentialRef, accountReference)
}

func (p *Postgres) EntriesByCredential(ctx context.Context, credentialRef int64) ([]domain.LedgerEntry, error) {
	return p.queryEntries(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE credential_ref = $1 ORDER BY id`, credentialRef)
}

func (p *Postgres) queryEntries(ctx context.Context, q string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.CredentialRef, &e.TransactionNumber, &e.Amount, &e.FirstName,
			&e.TransTime, &e.AccountReference, &e.ShortCode, &e.PhoneNumber, &e.FullName,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
