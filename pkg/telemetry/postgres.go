package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists turn telemetry to the single_turns and
// model_set_catalog tables.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects a pooled sink to the given DSN.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry DSN: %w", err)
	}
	cfg.MinConns = 2
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry pool: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Ping verifies database connectivity. Used by the health endpoint.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertModelSet inserts the capability combination if it is not already
// catalogued.
func (s *PostgresSink) UpsertModelSet(ctx context.Context, set ModelSet) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_set_catalog (set_id, set_type, stt_id, vlm_id, tts_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (set_id) DO NOTHING`,
		set.SetID, set.SetType, set.STTID, set.VLMID, set.TTSID)
	if err != nil {
		return fmt.Errorf("model set upsert failed: %w", err)
	}
	return nil
}

// RecordTurn inserts one turn record.
func (s *PostgresSink) RecordTurn(ctx context.Context, t Turn) error {
	var ttsMs *int64
	if t.TTSLatency > 0 {
		ms := t.TTSLatency.Milliseconds()
		ttsMs = &ms
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO single_turns (
			request_id, session_id, turn_index, timestamp_utc, model_set_id,
			stt_latency_ms, transcript,
			vlm_latency_ms, vlm_tokens_in, vlm_tokens_out, vlm_tok_per_sec,
			tts_latency_ms,
			total_turn_latency_ms, net_up_ms, net_down_ms, error_flag
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12,
			$13, NULL, NULL, NULL
		)`,
		t.RequestID, t.SessionID, t.TurnIndex, time.Now().UTC(), t.ModelSetID,
		t.STTLatency.Milliseconds(), t.Transcript,
		t.VLMLatency.Milliseconds(), t.TokensIn, t.TokensOut, t.TokensPerSec,
		ttsMs,
		t.TotalLatency.Milliseconds())
	if err != nil {
		return fmt.Errorf("turn insert failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}
