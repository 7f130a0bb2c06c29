package postgres

import (
	"context"
	"fmt"
)

// LedgerSchema creates the tables of the stock ledger.
const LedgerSchema = `
CREATE TABLE IF NOT EXISTS stock_operations (
    id              UUID PRIMARY KEY,
    operation_kind  TEXT NOT NULL,
    item_id         UUID NOT NULL,
    item_name       TEXT NOT NULL DEFAULT '',
    quantity_value  NUMERIC(20,6) NOT NULL DEFAULT 0,
    quantity_unit   TEXT NOT NULL DEFAULT '',
    weight_value    NUMERIC(20,6) NOT NULL DEFAULT 0,
    weight_unit     TEXT NOT NULL DEFAULT '',
    delta_value     BIGINT NOT NULL,
    delta_unit      TEXT NOT NULL DEFAULT 'kg',
    source_location TEXT,
    target_location TEXT,
    created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stock_operations_item ON stock_operations (item_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stock_operations_created ON stock_operations (created_at DESC);

CREATE TABLE IF NOT EXISTS item_totals (
    item_id        UUID PRIMARY KEY,
    item_name      TEXT NOT NULL DEFAULT '',
    total_quantity BIGINT NOT NULL DEFAULT 0,
    total_weight   BIGINT NOT NULL DEFAULT 0,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS location_totals (
    item_id       UUID NOT NULL,
    item_name     TEXT NOT NULL DEFAULT '',
    location_name TEXT NOT NULL,
    quantity      BIGINT NOT NULL DEFAULT 0,
    weight        BIGINT NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (item_id, location_name)
);
CREATE INDEX IF NOT EXISTS idx_location_totals_location ON location_totals (location_name);

CREATE TABLE IF NOT EXISTS sys_idempotency (
    idempotency_key       TEXT PRIMARY KEY,
    operation             TEXT NOT NULL,
    status                TEXT NOT NULL,
    request_hash          TEXT NOT NULL,
    response              BYTEA,
    response_status       INT NOT NULL DEFAULT 0,
    response_content_type TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL,
    expires_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sys_idempotency_expires ON sys_idempotency (expires_at);
`

// AllocatorSchema creates the tables of the allocation engine.
const AllocatorSchema = `
CREATE TABLE IF NOT EXISTS locations (
    id                  UUID PRIMARY KEY,
    name                TEXT NOT NULL,
    kind                TEXT NOT NULL,
    max_capacity_kg     BIGINT NOT NULL,
    current_capacity_kg BIGINT NOT NULL DEFAULT 0,
    description         TEXT NOT NULL DEFAULT '',
    position            INT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_locations_name ON locations (lower(name));

CREATE TABLE IF NOT EXISTS warehouse_operations (
    id                 UUID PRIMARY KEY,
    operation_kind     TEXT NOT NULL,
    item_id            UUID,
    item_name          TEXT,
    source_location_id UUID REFERENCES locations (id),
    target_location_id UUID REFERENCES locations (id),
    requested_kg       BIGINT,
    quantity_kg        BIGINT NOT NULL DEFAULT 0,
    status             TEXT NOT NULL,
    error_message      TEXT,
    created_at         TIMESTAMPTZ NOT NULL,
    completed_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_warehouse_operations_status ON warehouse_operations (status, created_at DESC);

CREATE TABLE IF NOT EXISTS temp_storage_items (
    id                  UUID PRIMARY KEY,
    item_id             UUID NOT NULL,
    item_name           TEXT NOT NULL DEFAULT '',
    quantity_kg         BIGINT NOT NULL,
    source_operation_id UUID REFERENCES warehouse_operations (id),
    created_at          TIMESTAMPTZ NOT NULL,
    moved_to_storage_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_temp_storage_pending ON temp_storage_items (created_at) WHERE moved_to_storage_at IS NULL;

CREATE TABLE IF NOT EXISTS sys_audit (
    id                 UUID PRIMARY KEY,
    entity_type        TEXT NOT NULL,
    entity_id          UUID NOT NULL,
    action             TEXT NOT NULL,
    changes            JSONB,
    changes_compressed BYTEA,
    compression_algo   TEXT NOT NULL DEFAULT 'none',
    created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sys_audit_entity ON sys_audit (entity_type, entity_id, created_at DESC);
`

// EnsureSchema applies schema. Every statement is idempotent.
func EnsureSchema(ctx context.Context, pool *Pool, schema string) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
