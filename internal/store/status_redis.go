package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/docgate/internal/gate"
)

// Job states.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

type Status struct {
	Status    string        `json:"status"`
	Ref       string        `json:"ref,omitempty"`
	Message   string        `json:"message,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Pages     int           `json:"total_pages,omitempty"`
	Start     *time.Time    `json:"start_time,omitempty"`
	End       *time.Time    `json:"end_time,omitempty"`
	Verdict   *gate.Verdict `json:"verdict,omitempty"`
	Text      string        `json:"text,omitempty"`
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects to Redis. Records expire ttl after their last write
// (0 keeps them forever).
func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStatus{client: c, keyNS: "docgate:job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m, err := toHash(st)
	if err != nil {
		return err
	}
	k := s.key(jobID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, m)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return fromHash(res), true, nil
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }

func toHash(st Status) (map[string]interface{}, error) {
	m := map[string]interface{}{
		"status": st.Status,
		"ref":    st.Ref,
	}
	if st.Message != "" {
		m["message"] = st.Message
	}
	if st.ErrorCode != "" {
		m["error_code"] = st.ErrorCode
	}
	if st.Pages > 0 {
		m["pages"] = st.Pages
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Text != "" {
		m["text"] = st.Text
	}
	if st.Verdict != nil {
		b, err := json.Marshal(st.Verdict)
		if err != nil {
			return nil, fmt.Errorf("marshal verdict: %w", err)
		}
		m["verdict"] = string(b)
	}
	return m, nil
}

func fromHash(res map[string]string) Status {
	st := Status{
		Status:    res["status"],
		Ref:       res["ref"],
		Message:   res["message"],
		ErrorCode: res["error_code"],
		Text:      res["text"],
	}
	if p := res["pages"]; p != "" {
		// ignore parse error; default 0
		fmt.Sscan(p, &st.Pages)
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["verdict"]; v != "" {
		var verdict gate.Verdict
		if err := json.Unmarshal([]byte(v), &verdict); err == nil {
			st.Verdict = &verdict
		}
	}
	return st
}
