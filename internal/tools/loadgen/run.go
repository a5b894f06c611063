package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config shapes a synthetic traffic run against a live deployment.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
}

// Run drives the configured traffic profile against BaseURL until Duration
// elapses. Each worker registers and logs in its own synthetic member so
// authenticated endpoints see realistic traffic.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	profile := normalizeProfile(cfg.Profile)
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	res := &Result{StatusClasses: map[string]int{}}
	var mu sync.Mutex
	record := func(status int, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.TotalRequests++
		if err != nil {
			res.Failures++
			res.StatusClasses["error"]++
			return
		}
		class := classifyStatusClass(status)
		res.StatusClasses[class]++
		if status >= 500 {
			res.Failures++
		}
	}

	ticks := make(chan struct{})
	go func() {
		defer close(ticks)
		interval := time.Second / time.Duration(cfg.RPS)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				select {
				case ticks <- struct{}{}:
				case <-runCtx.Done():
					return
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Concurrency; i++ {
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		g.Go(func() error {
			w := &worker{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client, rng: rng}
			w.enroll(gctx, record)
			for range ticks {
				w.fire(gctx, profile, record)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

type worker struct {
	baseURL string
	client  *http.Client
	rng     *rand.Rand
	email   string
	token   string
}

// enroll registers a member and logs it in; failures are recorded and the
// worker simply keeps issuing unauthenticated traffic.
func (w *worker) enroll(ctx context.Context, record func(int, error)) {
	w.email = fmt.Sprintf("loadgen-%d@club.dev", w.rng.Int63())
	status, _, err := w.post(ctx, "/api/v1/auth/register", map[string]any{
		"name":     "loadgen",
		"email":    w.email,
		"password": "loadgen-password-1",
	}, "")
	record(status, err)
	w.login(ctx, record)
}

func (w *worker) login(ctx context.Context, record func(int, error)) {
	status, body, err := w.post(ctx, "/api/v1/auth/login", map[string]any{
		"email":    w.email,
		"password": "loadgen-password-1",
	}, "")
	record(status, err)
	if err != nil || status != http.StatusOK {
		return
	}
	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		w.token = envelope.Data.Token
	}
}

func (w *worker) fire(ctx context.Context, profile string, record func(int, error)) {
	switch profile {
	case "auth":
		w.login(ctx, record)
	case "checkin":
		status, _, err := w.post(ctx, "/api/v1/checkin/token", nil, w.token)
		record(status, err)
	default: // mixed
		switch w.rng.Intn(5) {
		case 0:
			status, err := w.get(ctx, "/health/ready", "")
			record(status, err)
		case 1:
			w.login(ctx, record)
		case 2:
			status, err := w.get(ctx, "/api/v1/me", w.token)
			record(status, err)
		case 3:
			status, err := w.get(ctx, "/api/v1/sessions/", w.token)
			record(status, err)
		default:
			status, _, err := w.post(ctx, "/api/v1/checkin/token", nil, w.token)
			record(status, err)
		}
	}
}

func (w *worker) get(ctx context.Context, path, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

func (w *worker) post(ctx context.Context, path string, payload any, token string) (int, []byte, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, &body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), nil
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if p == "" {
		return "mixed"
	}
	return p
}
