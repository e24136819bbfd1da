package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// Redis persists documents as a metadata hash plus an op list and relays
// commits over Redis pub/sub. The optimistic lock lives in a Lua script so
// the revision check and the append commit or fail as one unit.
type Redis struct {
	rdb redis.UniversalClient
}

func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

func metaKey(docID string) string { return "openot:doc:" + docID }
func opsKey(docID string) string  { return "openot:doc:" + docID + ":ops" }

// KEYS[1] meta hash, KEYS[2] ops list; ARGV[1] log entry JSON, ARGV[2] new
// revision.
var saveOperationScript = redis.NewScript(`
local rev = redis.call('HGET', KEYS[1], 'rev')
if not rev then
  return redis.error_reply('DOCUMENT_NOT_FOUND')
end
if tonumber(rev) + 1 ~= tonumber(ARGV[2]) then
  return redis.error_reply('CONCURRENCY_CONFLICT')
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'rev', ARGV[2])
return redis.status_reply('OK')
`)

// KEYS[1] meta hash; ARGV[1] type name, ARGV[2] initial snapshot JSON.
var createDocumentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.error_reply('DOCUMENT_EXISTS')
end
redis.call('HSET', KEYS[1], 'type', ARGV[1], 'rev', 0, 'snapshot', ARGV[2], 'snapshot_rev', 0)
return redis.status_reply('OK')
`)

func (r *Redis) CreateDocument(ctx context.Context, docID, typeName string, initial json.RawMessage) error {
	err := createDocumentScript.Run(ctx, r.rdb, []string{metaKey(docID)}, typeName, string(initial)).Err()
	return r.translate(err, docID)
}

func (r *Redis) GetRecord(ctx context.Context, docID string) (Record, error) {
	fields, err := r.rdb.HGetAll(ctx, metaKey(docID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ot.ErrDocumentNotFound, docID)
	}
	rev, err := strconv.ParseUint(fields["rev"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt revision for %s: %v", ot.ErrStorageUnavailable, docID, err)
	}
	snapRev, _ := strconv.ParseUint(fields["snapshot_rev"], 10, 64)
	return Record{
		Type:             fields["type"],
		Revision:         rev,
		Snapshot:         json.RawMessage(fields["snapshot"]),
		SnapshotRevision: snapRev,
	}, nil
}

func (r *Redis) GetHistory(ctx context.Context, docID string, from uint64, limit int) ([]Operation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(from) + int64(limit) - 1
	}
	vals, err := r.rdb.LRange(ctx, opsKey(docID), int64(from), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	out := make([]Operation, len(vals))
	for i, v := range vals {
		if err := json.Unmarshal([]byte(v), &out[i]); err != nil {
			return nil, fmt.Errorf("%w: corrupt log entry %d for %s: %v", ot.ErrStorageUnavailable, int(from)+i, docID, err)
		}
	}
	return out, nil
}

func (r *Redis) SaveOperation(ctx context.Context, docID string, op Operation, newRevision uint64) error {
	entry, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	err = saveOperationScript.Run(ctx, r.rdb,
		[]string{metaKey(docID), opsKey(docID)},
		string(entry), newRevision).Err()
	return r.translate(err, docID)
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func() error, error) {
	pubsub := r.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
	}
	go func() {
		for msg := range pubsub.Channel() {
			handler([]byte(msg.Payload))
		}
	}()
	return pubsub.Close, nil
}

// translate maps the error replies raised inside the Lua scripts back onto
// the sentinel errors.
func (r *Redis) translate(err error, docID string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, ot.ErrDocumentNotFound.Error()):
		return fmt.Errorf("%w: %s", ot.ErrDocumentNotFound, docID)
	case strings.Contains(msg, ot.ErrConcurrencyConflict.Error()):
		return fmt.Errorf("%w: %s", ot.ErrConcurrencyConflict, docID)
	case strings.Contains(msg, ot.ErrDocumentExists.Error()):
		return fmt.Errorf("%w: %s", ot.ErrDocumentExists, docID)
	}
	return fmt.Errorf("%w: %v", ot.ErrStorageUnavailable, err)
}
