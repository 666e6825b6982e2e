// Package httpmodel labels images through a model server over HTTP.
package httpmodel

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/infrastructure/resilience"
)

const detectPath = "/v1/detect"

type Options struct {
	Timeout            time.Duration
	RequestsPerSecond  float64
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// Client asks a model server for object detections, one image per request.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(baseURL, model string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	executor := opts.ResilienceExecutor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), opts.Logger)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		executor:   executor,
	}
}

type detectRequest struct {
	Model    string `json:"model"`
	Filename string `json:"filename"`
	Image    string `json:"image"`
}

type detectResponse struct {
	Detections []domain.Label `json:"detections"`
}

func (c *Client) Label(ctx context.Context, path string) ([]domain.Label, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMissingArtifact, "read image", err)
	}
	req := detectRequest{
		Model:    c.model,
		Filename: filepath.Base(path),
		Image:    base64.StdEncoding.EncodeToString(raw),
	}

	resp, err := resilience.Call(ctx, c.executor, "labeler.detect", func(ctx context.Context) (detectResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return detectResponse{}, err
		}
		var out detectResponse
		err := c.postJSON(ctx, detectPath, req, &out, "detect")
		return out, err
	}, classifyModelError)
	if err != nil {
		err = resilience.WrapTemporary("labeler.detect", err, classifyModelError)
		if domain.IsKind(err, domain.ErrTemporary) {
			return nil, err
		}
		return nil, fmt.Errorf("detect %s: %w", req.Filename, err)
	}
	return resp.Detections, nil
}
