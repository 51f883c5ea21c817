package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	transcriptKeyPrefix  = "chat_transcript:"
	transcriptTTL        = 24 * time.Hour
	transcriptMaxEntries = 200
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TranscriptEntry is one line of a chat session.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptStore keeps a bounded, expiring list of entries per session in
// Redis. A nil store accepts and discards everything.
type TranscriptStore struct {
	redis      *redis.Client
	tracer     trace.Tracer
	maxEntries int64
	ttl        time.Duration
}

func NewTranscriptStore(client *redis.Client) *TranscriptStore {
	if client == nil {
		return nil
	}
	return &TranscriptStore{
		redis:      client,
		tracer:     otel.Tracer("medibook.internal.conversation.transcript"),
		maxEntries: transcriptMaxEntries,
		ttl:        transcriptTTL,
	}
}

// Append pushes entry onto the session's list, refreshing its expiry.
func (s *TranscriptStore) Append(ctx context.Context, sessionID string, entry TranscriptEntry) error {
	if s == nil {
		return nil
	}
	if sessionID == "" {
		return errors.New("conversation: transcript session id required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("conversation: marshal transcript entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "conversation.transcript.append")
	defer span.End()

	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	pipe.LTrim(ctx, key, -s.maxEntries, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: append transcript entry: %w", err)
	}
	return nil
}

// List returns the newest limit entries in order, or all of them when
// limit is zero. Entries that fail to decode are skipped.
func (s *TranscriptStore) List(ctx context.Context, sessionID string, limit int64) ([]TranscriptEntry, error) {
	if s == nil {
		return nil, nil
	}
	if sessionID == "" {
		return nil, errors.New("conversation: transcript session id required")
	}

	ctx, span := s.tracer.Start(ctx, "conversation.transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(sessionID), start, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: list transcript: %w", err)
	}

	out := make([]TranscriptEntry, 0, len(raw))
	for _, item := range raw {
		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func transcriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}
