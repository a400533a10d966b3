package records

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"studynotes/internal/apperrors"
	"studynotes/internal/note"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "notes:"

// upsertScript bumps the generation, sets created_at only on first write and
// overwrites the mutable fields. Returns {generation, created_at}.
var upsertScript = redis.NewScript(`
local gen = redis.call('HINCRBY', KEYS[1], 'generation', 1)
if gen == 1 then
	redis.call('HSET', KEYS[1], 'created_at', ARGV[6])
end
redis.call('HSET', KEYS[1],
	'owner_id', ARGV[1], 'subject_id', ARGV[2], 'title', ARGV[3],
	'source_url', ARGV[4], 'status', ARGV[5], 'artifact_key', '',
	'updated_at', ARGV[7])
return {gen, redis.call('HGET', KEYS[1], 'created_at')}
`)

// updateScript writes the status only when the generation matches and the
// stored status is one of ARGV[5..]. Returns -1 when missing, 0 when stale,
// -2 when the transition is not allowed, 1 when written.
var updateScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'generation')
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
local status = redis.call('HGET', KEYS[1], 'status')
local allowed = false
for i = 5, #ARGV do
	if ARGV[i] == status then
		allowed = true
	end
end
if not allowed then
	return -2
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'artifact_key', ARGV[3], 'updated_at', ARGV[4])
return 1
`)

// Redis stores each record as a hash under notes:<owner>:<video>.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedis wraps a connected client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert implements note.RecordStore.
func (r *Redis) Upsert(ctx context.Context, rec *note.StatusRecord) (*note.StatusRecord, error) {
	if rec == nil {
		return nil, apperrors.Validation("record", "record is required")
	}
	stored := rec.Clone()
	stored.ArtifactKey = ""
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.now()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}

	res, err := upsertScript.Run(ctx, r.client, []string{recordKey(rec.Key())},
		stored.OwnerID, stored.SubjectID, stored.Title, stored.SourceURL, string(stored.Status),
		formatTime(stored.CreatedAt), formatTime(stored.UpdatedAt),
	).Slice()
	if err != nil {
		return nil, apperrors.Storage("redis.upsert", err)
	}
	if len(res) != 2 {
		return nil, apperrors.Storage("redis.upsert", fmt.Errorf("unexpected script reply %v", res))
	}

	gen, ok := res[0].(int64)
	if !ok {
		return nil, apperrors.Storage("redis.upsert", fmt.Errorf("unexpected generation %v", res[0]))
	}
	stored.Generation = gen
	if created, ok := res[1].(string); ok {
		if t, err := parseTime(created); err == nil {
			stored.CreatedAt = t
		}
	}
	return stored, nil
}

// UpdateStatus implements note.RecordStore.
func (r *Redis) UpdateStatus(ctx context.Context, key note.RecordKey, generation int64, status note.Status, artifactKey string) error {
	args := []any{strconv.FormatInt(generation, 10), string(status), artifactKeyFor(status, artifactKey), formatTime(r.now())}
	for _, from := range status.Predecessors() {
		args = append(args, string(from))
	}
	res, err := updateScript.Run(ctx, r.client, []string{recordKey(key)}, args...).Int64()
	if err != nil {
		return apperrors.Storage("redis.update_status", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return note.ErrStale
	case -2:
		return note.ErrTransition
	default:
		return apperrors.NotFound("note", key.SubjectID)
	}
}

// Get implements note.RecordStore.
func (r *Redis) Get(ctx context.Context, key note.RecordKey) (*note.StatusRecord, error) {
	fields, err := r.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		return nil, apperrors.Storage("redis.get", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NotFound("note", key.SubjectID)
	}
	rec, err := recordFromHash(fields)
	if err != nil {
		return nil, apperrors.Storage("redis.get", err)
	}
	return rec, nil
}

// Ready implements health.ReadinessChecker.
func (r *Redis) Ready(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// recordKey escapes both parts so ':' in an id cannot collide with the separator.
func recordKey(key note.RecordKey) string {
	return redisKeyPrefix + url.QueryEscape(key.OwnerID) + ":" + url.QueryEscape(key.SubjectID)
}

func recordFromHash(fields map[string]string) (*note.StatusRecord, error) {
	gen, err := strconv.ParseInt(fields["generation"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse generation: %w", err)
	}
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := parseTime(fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	status := note.Status(fields["status"])
	if !status.Valid() {
		return nil, errors.New("invalid status " + strconv.Quote(fields["status"]))
	}
	return &note.StatusRecord{
		OwnerID:     fields["owner_id"],
		SubjectID:   fields["subject_id"],
		Title:       fields["title"],
		SourceURL:   fields["source_url"],
		Status:      status,
		ArtifactKey: fields["artifact_key"],
		Generation:  gen,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

var _ note.RecordStore = (*Redis)(nil)
