// Package telemetry records per-turn latency and token metrics. Recording is
// strictly best-effort: a sink failure is logged by the caller and never
// affects the conversational pipeline.
package telemetry

import (
	"context"
	"fmt"
	"time"
)

// ModelSet identifies the capability combination a session runs with.
type ModelSet struct {
	SetID   string
	SetType string // "single"
	STTID   string
	VLMID   string
	TTSID   string
}

// MakeSetID builds the reproducible catalog key for a capability
// combination, e.g. "whisper-1/gpt-4o/tts-1:single".
func MakeSetID(sttID, vlmID, ttsID string) string {
	return fmt.Sprintf("%s/%s/%s:single", sttID, vlmID, ttsID)
}

// NewModelSet builds the catalog row for a session's capability bundle.
func NewModelSet(sttID, vlmID, ttsID string) ModelSet {
	return ModelSet{
		SetID:   MakeSetID(sttID, vlmID, ttsID),
		SetType: "single",
		STTID:   sttID,
		VLMID:   vlmID,
		TTSID:   ttsID,
	}
}

// Turn is the telemetry record for one completed turn.
type Turn struct {
	RequestID  string
	SessionID  string
	TurnIndex  int
	ModelSetID string

	STTLatency time.Duration
	Transcript string

	VLMLatency   time.Duration
	TokensIn     int
	TokensOut    int
	TokensPerSec float64

	// TTSLatency is zero when synthesis was skipped for the turn.
	TTSLatency time.Duration

	TotalLatency time.Duration
}

// Sink accepts telemetry records. Implementations must be safe for
// concurrent use; callers never retry failed writes.
type Sink interface {
	// UpsertModelSet registers the capability combination once per session.
	UpsertModelSet(ctx context.Context, set ModelSet) error

	// RecordTurn persists one turn record.
	RecordTurn(ctx context.Context, t Turn) error

	// Close releases sink resources.
	Close()
}

// NopSink discards every record. Used when no store is configured.
type NopSink struct{}

func (NopSink) UpsertModelSet(context.Context, ModelSet) error { return nil }
func (NopSink) RecordTurn(context.Context, Turn) error         { return nil }
func (NopSink) Close()                                         {}
