package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	cfgpkg "github.com/local/docgate/internal/config"
	"github.com/local/docgate/internal/docerr"
	"github.com/local/docgate/internal/fetch"
	"github.com/local/docgate/internal/gate"
	"github.com/local/docgate/internal/imagerender"
	logpkg "github.com/local/docgate/internal/logger"
	"github.com/local/docgate/internal/ocr"
	"github.com/local/docgate/internal/pipeline"
	"github.com/local/docgate/internal/storage"
)

// Exit codes
const (
	exitFailed    = 1
	exitIllegible = 2
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	app := &cli.App{
		Name:  "docgate",
		Usage: "decide whether scanned documents are legible enough for OCR",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "zerolog level for stderr output"},
			&cli.StringFlag{Name: "temp-root", Value: cfg.Gate.TempRoot, Usage: "parent directory for rasterization workdirs"},
			&cli.BoolFlag{Name: "parallel", Value: cfg.Gate.ParallelMetrics, Usage: "compute the three signals concurrently"},
		},
		Before: func(c *cli.Context) error {
			return logpkg.Init(logpkg.Options{Level: c.String("log-level"), Pretty: true, Console: os.Stderr})
		},
		After: func(c *cli.Context) error {
			logpkg.Close()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "classify each file and print one JSON verdict per line",
				ArgsUsage: "FILE|URL|s3://bucket/key ...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "strict", Usage: "exit 2 when any document is illegible"},
				},
				Action: func(c *cli.Context) error { return checkAction(c, cfg) },
			},
			{
				Name:      "extract",
				Usage:     "run OCR on a file only if it passes the legibility gate",
				ArgsUsage: "FILE|URL|s3://bucket/key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lang", Value: cfg.OCR.Language, Usage: "tesseract language(s), e.g. eng+deu"},
				},
				Action: func(c *cli.Context) error { return extractAction(c, cfg) },
			},
			{
				Name:  "cleanup",
				Usage: "remove rasterization workdirs and downloads left by crashed runs",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "max-age", Value: cfg.Gate.StaleWorkdirAge},
				},
				Action: func(c *cli.Context) error {
					root := c.String("temp-root")
					n := gate.CleanupStaleWorkdirs(root, c.Duration("max-age"))
					n += fetch.CleanupTemps(root, c.Duration("max-age"))
					fmt.Printf("removed %d stale entries\n", n)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailed)
	}
}

func newGate(c *cli.Context) *gate.Gate {
	return gate.New(gate.Options{
		TempRoot:        c.String("temp-root"),
		ParallelMetrics: c.Bool("parallel"),
		Rasterizer:      imagerender.NewRasterizer(nil),
	})
}

// newFetcher only builds an S3 client when a ref needs one.
func newFetcher(ctx context.Context, cfg cfgpkg.Config, refs []string, tempRoot string) *fetch.Fetcher {
	for _, r := range refs {
		if !strings.HasPrefix(r, "s3://") {
			continue
		}
		s3c, err := storage.NewS3Client(ctx, cfg.Storage.Bucket, cfg.Storage.Region)
		if err != nil {
			log.Warn().Err(err).Msg("s3 refs will fail")
			break
		}
		return fetch.New(nil, s3c, tempRoot)
	}
	return fetch.New(nil, nil, tempRoot)
}

type checkLine struct {
	File      string        `json:"file"`
	Verdict   *gate.Verdict `json:"verdict,omitempty"`
	Message   string        `json:"message,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func checkAction(c *cli.Context, cfg cfgpkg.Config) error {
	refs := c.Args().Slice()
	if len(refs) == 0 {
		return cli.Exit("check: at least one FILE is required", exitFailed)
	}
	g := newGate(c)
	f := newFetcher(c.Context, cfg, refs, c.String("temp-root"))
	enc := json.NewEncoder(os.Stdout)

	failed, illegible := 0, 0
	for _, ref := range refs {
		line := checkLine{File: ref}
		v, err := classifyRef(c.Context, f, g, ref, cfg.Gate.RequestTimeout)
		switch {
		case err != nil:
			failed++
			line.ErrorCode = string(docerr.CodeOf(err))
			line.Error = err.Error()
		default:
			line.Verdict = &v
			if !v.Legible() {
				illegible++
				line.Message = pipeline.MessageNotClear
			}
		}
		_ = enc.Encode(line)
	}

	if failed > 0 {
		return cli.Exit("", exitFailed)
	}
	if illegible > 0 && c.Bool("strict") {
		return cli.Exit("", exitIllegible)
	}
	return nil
}

func classifyRef(ctx context.Context, f *fetch.Fetcher, g *gate.Gate, ref string, timeout time.Duration) (gate.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	path, cleanup, err := f.Resolve(ctx, ref)
	if err != nil {
		return gate.Verdict{}, err
	}
	defer cleanup()
	return g.Classify(ctx, path)
}

func extractAction(c *cli.Context, cfg cfgpkg.Config) error {
	ref := c.Args().First()
	if ref == "" || c.NArg() > 1 {
		return cli.Exit("extract: exactly one FILE is required", exitFailed)
	}
	tess, err := ocr.NewTesseract(c.String("lang"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	defer tess.Close()

	rasterizer := imagerender.NewRasterizer(nil)
	g := gate.New(gate.Options{TempRoot: c.String("temp-root"), ParallelMetrics: c.Bool("parallel"), Rasterizer: rasterizer})
	p := pipeline.New(g, tess, rasterizer, cfg.OCR.JPEGQuality)

	ctx, cancel := context.WithTimeout(c.Context, cfg.Gate.RequestTimeout)
	defer cancel()
	f := newFetcher(ctx, cfg, []string{ref}, c.String("temp-root"))
	path, cleanup, err := f.Resolve(ctx, ref)
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}
	defer cleanup()

	out, err := p.Run(ctx, path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", docerr.CodeOf(err), err), exitFailed)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if !out.Extracted {
		return cli.Exit("", exitIllegible)
	}
	return nil
}
