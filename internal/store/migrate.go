package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id             BIGSERIAL PRIMARY KEY,
		name           VARCHAR(255) NOT NULL,
		account_number CHAR(3)      NOT NULL,
		api_key        VARCHAR(64)  NOT NULL,
		callback_url   TEXT,
		created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
		CONSTRAINT tenants_account_number_key UNIQUE (account_number),
		CONSTRAINT tenants_api_key_key UNIQUE (api_key)
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		id                  BIGSERIAL PRIMARY KEY,
		tenant_id           BIGINT       NOT NULL REFERENCES tenants(id),
		credential_id       VARCHAR(64)  NOT NULL,
		name                VARCHAR(255) NOT NULL,
		consumer_key        TEXT         NOT NULL,
		consumer_secret     TEXT         NOT NULL,
		short_code          VARCHAR(20)  NOT NULL,
		passkey             TEXT         NOT NULL,
		initiator_name      TEXT         NOT NULL DEFAULT '',
		security_credential TEXT         NOT NULL DEFAULT '',
		environment         VARCHAR(16)  NOT NULL DEFAULT 'production'
		                    CHECK (environment IN ('production', 'sandbox')),
		is_active           BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
		CONSTRAINT credentials_credential_id_key UNIQUE (credential_id)
	)`,
	`CREATE INDEX IF NOT EXISTS credentials_short_code_idx ON credentials (short_code)`,
	`CREATE INDEX IF NOT EXISTS credentials_tenant_idx ON credentials (tenant_id)`,
	`CREATE TABLE IF NOT EXISTS pending_pushes (
		id                  BIGSERIAL PRIMARY KEY,
		credential_ref      BIGINT        NOT NULL REFERENCES credentials(id),
		merchant_request_id VARCHAR(64)   NOT NULL,
		checkout_request_id VARCHAR(64)   NOT NULL,
		phone_number        VARCHAR(20)   NOT NULL,
		account_reference   VARCHAR(20)   NOT NULL,
		amount              NUMERIC(14,2) NOT NULL,
		status              VARCHAR(16)   NOT NULL DEFAULT 'Pending',
		result_code         INTEGER,
		result_desc         TEXT,
		receipt_number      VARCHAR(32),
		created_at          TIMESTAMPTZ   NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ   NOT NULL DEFAULT now(),
		CONSTRAINT pending_pushes_pair_key UNIQUE (merchant_request_id, checkout_request_id)
	)`,
	`CREATE INDEX IF NOT EXISTS pending_pushes_status_created_idx ON pending_pushes (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                 BIGSERIAL PRIMARY KEY,
		credential_ref     BIGINT        NOT NULL REFERENCES credentials(id),
		transaction_number VARCHAR(32)   NOT NULL,
		amount             NUMERIC(14,2) NOT NULL,
		first_name         TEXT          NOT NULL DEFAULT '',
		trans_time         VARCHAR(32)   NOT NULL DEFAULT '',
		account_reference  VARCHAR(64)   NOT NULL DEFAULT '',
		short_code         VARCHAR(20)   NOT NULL,
		phone_number       VARCHAR(32),
		full_name          TEXT,
		created_at         TIMESTAMPTZ   NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ   NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_txn_idx ON ledger_entries (transaction_number)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_ref_idx ON ledger_entries (credential_ref, account_reference)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
