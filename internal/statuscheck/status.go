package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker is satisfied by storage.S3Client.
type BucketChecker interface {
	HeadBucket(ctx context.Context) error
}

// Capacity reports rasterization slot usage; satisfied by limiter.Limiter.
type Capacity interface {
	InFlight() int
	Max() int
}

// Checker aggregates health checks for the dependencies a classification touches.
type Checker struct {
	redis     RedisPinger
	s3        BucketChecker
	tempRoot  string
	tesseract func() string
	capacity  Capacity
}

// Options configures the Checker. Nil dependencies are reported as not configured.
type Options struct {
	Redis            RedisPinger
	S3               BucketChecker
	TempRoot         string
	TesseractVersion func() string
	Capacity         Capacity
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	Workdir   Status `json:"workdir"`
	Tesseract Status `json:"tesseract"`
	Renders   Status `json:"renders"`
}

// Healthy reports whether the gate itself can run. Redis, S3 and Tesseract
// only back optional surfaces.
func (s Summary) Healthy() bool { return s.Workdir.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:     opts.Redis,
		s3:        opts.S3,
		tempRoot:  opts.TempRoot,
		tesseract: opts.TesseractVersion,
		capacity:  opts.Capacity,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		S3:        c.checkS3(ctx),
		Workdir:   c.checkWorkdir(),
		Tesseract: c.checkTesseract(),
		Renders:   c.checkCapacity(),
	}
}

// checkCapacity reports held render slots. A saturated limiter is still OK;
// requests queue for a slot.
func (c *Checker) checkCapacity() Status {
	if c.capacity == nil {
		return Status{OK: true, Message: "unbounded"}
	}
	return Status{OK: true, Message: fmt.Sprintf("%d/%d slots in use", c.capacity.InFlight(), c.capacity.Max())}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.HeadBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkWorkdir proves a rasterization directory can be created and removed.
func (c *Checker) checkWorkdir() Status {
	dir, err := os.MkdirTemp(c.tempRoot, "docgate-probe-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if err := os.RemoveAll(dir); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Writable"}
}

func (c *Checker) checkTesseract() (st Status) {
	if c.tesseract == nil {
		return Status{OK: false, Message: "OCR disabled"}
	}
	defer func() {
		if r := recover(); r != nil {
			st = Status{OK: false, Message: "Library unavailable"}
		}
	}()
	v := strings.TrimSpace(c.tesseract())
	if v == "" {
		return Status{OK: false, Message: "Version unknown"}
	}
	return Status{OK: true, Message: v}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
