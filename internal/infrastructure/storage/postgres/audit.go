package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
)

// CompressionAlgo names how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const (
	auditEntityOperation = "warehouse_operation"
	auditActionPlan      = "plan"
)

var (
	_ allocation.Auditor    = (*AuditLog)(nil)
	_ allocation.PlanReader = (*AuditLog)(nil)
)

// AuditLog stores processed allocation plans in sys_audit. Payloads above
// the threshold are zstd-compressed.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditLog creates an audit log compressing payloads larger than
// threshold bytes. A non-positive threshold means 10KB.
func NewAuditLog(txManager *TxManager, threshold int) (*AuditLog, error) {
	if threshold <= 0 {
		threshold = 10 * 1024
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
	}, nil
}

// RecordPlan appends plan to the audit table.
func (a *AuditLog) RecordPlan(ctx context.Context, plan allocation.PlanRecord) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	plain, compressed, algo := a.encode(payload)

	createdAt := plan.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = a.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (id, entity_type, entity_id, action, changes, changes_compressed, compression_algo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id.New(), auditEntityOperation, plan.OperationID, auditActionPlan, plain, compressed, algo, createdAt)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// GetPlan returns the latest plan recorded for an operation.
func (a *AuditLog) GetPlan(ctx context.Context, operationID id.ID) (allocation.PlanRecord, error) {
	var (
		plain, compressed []byte
		algo              CompressionAlgo
	)
	err := a.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT changes, changes_compressed, compression_algo
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2 AND action = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, auditEntityOperation, operationID, auditActionPlan).Scan(&plain, &compressed, &algo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return allocation.PlanRecord{}, apperror.NewNotFound("plan", operationID)
		}
		return allocation.PlanRecord{}, fmt.Errorf("query plan: %w", err)
	}

	payload, err := a.decode(plain, compressed, algo)
	if err != nil {
		return allocation.PlanRecord{}, err
	}

	var plan allocation.PlanRecord
	if err := json.Unmarshal(payload, &plan); err != nil {
		return allocation.PlanRecord{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	return plan, nil
}

// encode stores payloads above the threshold zstd-compressed.
func (a *AuditLog) encode(payload []byte) (plain, compressed []byte, algo CompressionAlgo) {
	if len(payload) > a.compressThreshold {
		return nil, a.encoder.EncodeAll(payload, nil), CompressionZstd
	}
	return payload, nil, CompressionNone
}

func (a *AuditLog) decode(plain, compressed []byte, algo CompressionAlgo) ([]byte, error) {
	switch algo {
	case CompressionNone, "":
		return plain, nil
	case CompressionZstd:
		out, err := a.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress plan: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", algo)
	}
}
