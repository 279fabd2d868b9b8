package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"go-blur-halo/pkg/comm"
)

// keyTTL bounds how long mailboxes and run metadata outlive a run.
const keyTTL = 24 * time.Hour

// pollBlock is how long one XREAD waits before Recv rechecks its context.
const pollBlock = time.Second

// ErrRunExists is returned by JoinRun when the run ID was already used.
var ErrRunExists = errors.New("run id already in use")

// Options configures a RedisClient.
type Options struct {
	Addr     string
	RunID    string
	Compress bool
}

// RedisClient carries one worker's messages over Redis Streams. Each
// (source, destination, tag) triple is its own stream, read in order with a
// per-stream cursor, so delivery order matches send order.
type RedisClient struct {
	client *redis.Client
	runID  string
	rank   int

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu      sync.Mutex
	cursors map[string]string
}

// NewRedisClient connects to Redis and returns the transport of worker rank
// in run opts.RunID.
func NewRedisClient(ctx context.Context, opts Options, rank int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(client, opts, rank)
}

func newClient(client *redis.Client, opts Options, rank int) (*RedisClient, error) {
	r := &RedisClient{
		client:  client,
		runID:   opts.RunID,
		rank:    rank,
		cursors: make(map[string]string),
	}
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		r.encoder, r.decoder = enc, dec
	}
	return r, nil
}

func (r *RedisClient) Close() error {
	if r.encoder != nil {
		r.encoder.Close()
		r.decoder.Close()
	}
	return r.client.Close()
}

func (r *RedisClient) mailboxStream(src, dst, tag int) string {
	return fmt.Sprintf("halo:%s:mbox:%d:%d:%d", r.runID, src, dst, tag)
}

func (r *RedisClient) runInfoKey() string {
	return fmt.Sprintf("halo:%s:info", r.runID)
}

func (r *RedisClient) runStatusKey() string {
	return fmt.Sprintf("halo:%s:status", r.runID)
}

func (r *RedisClient) rankKey() string {
	return fmt.Sprintf("halo:%s:rank:%d", r.runID, r.rank)
}

// JoinRun claims this client's rank in the run. Mailbox streams are read
// from their start, so a run ID whose rank was already claimed would replay
// the earlier run's messages; such a run is refused with ErrRunExists.
func (r *RedisClient) JoinRun(ctx context.Context) error {
	ok, err := r.client.SetNX(ctx, r.rankKey(), time.Now().Unix(), keyTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run %s rank %d", ErrRunExists, r.runID, r.rank)
	}
	return nil
}

func (r *RedisClient) encode(payload []byte) []byte {
	if r.encoder == nil {
		return payload
	}
	return r.encoder.EncodeAll(payload, nil)
}

func (r *RedisClient) decode(data []byte) ([]byte, error) {
	if r.decoder == nil {
		return data, nil
	}
	out, err := r.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// Send appends payload to the mailbox stream of dst.
func (r *RedisClient) Send(ctx context.Context, dst, tag int, payload []byte) error {
	stream := r.mailboxStream(r.rank, dst, tag)

	pipe := r.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": r.encode(payload)},
	})
	pipe.Expire(ctx, stream, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Recv blocks until the next message from src under tag arrives or ctx is
// done. There is no read timeout; the group relies on every sender
// eventually sending.
func (r *RedisClient) Recv(ctx context.Context, src, tag int) ([]byte, error) {
	stream := r.mailboxStream(src, r.rank, tag)

	r.mu.Lock()
	cursor, ok := r.cursors[stream]
	r.mu.Unlock()
	if !ok {
		cursor = "0-0"
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, cursor},
			Count:   1,
			Block:   pollBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if len(result) == 0 || len(result[0].Messages) == 0 {
			continue
		}

		msg := result[0].Messages[0]
		r.mu.Lock()
		r.cursors[stream] = msg.ID
		r.mu.Unlock()

		return r.decode(bytesFromInterface(msg.Values["data"]))
	}
}

// RunInfo is the metadata the coordinator publishes for a run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Filter    string    `json:"filter"`
	Workers   int       `json:"workers"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Channels  int       `json:"channels"`
	Digest    uint64    `json:"digest"`
	StartTime time.Time `json:"start_time"`
	Elapsed   float64   `json:"elapsed_seconds,omitempty"`
}

func (r *RedisClient) StoreRunInfo(ctx context.Context, info *RunInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.runInfoKey(), b, keyTTL).Err()
}

func (r *RedisClient) GetRunInfo(ctx context.Context) (*RunInfo, error) {
	data, err := r.client.Get(ctx, r.runInfoKey()).Result()
	if err != nil {
		return nil, err
	}

	var info RunInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *RedisClient) MarkRunCompleted(ctx context.Context) error {
	return r.client.Set(ctx, r.runStatusKey(), "completed", keyTTL).Err()
}

func (r *RedisClient) IsRunCompleted(ctx context.Context) (bool, error) {
	result, err := r.client.Get(ctx, r.runStatusKey()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result == "completed", nil
}

func bytesFromInterface(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}

var _ comm.Transport = (*RedisClient)(nil)
