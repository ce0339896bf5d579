package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/vecforge/errs"
)

// Worker is the address a coordinator uses to reach this service.
type Worker struct {
	URL  string `json:"workerURL"`
	Port int    `json:"workerPort"`
}

type registration struct {
	WorkerList []Worker `json:"workerList"`
}

// Register announces w to the coordinator at baseURL via POST /register_worker.
// A nil client uses a client with a 10 second timeout.
func Register(ctx context.Context, client *http.Client, baseURL string, w Worker) error {
	const op = "service.register"
	if strings.TrimSpace(baseURL) == "" {
		return errs.Configuration(op, "coordinator.url", "is required")
	}
	if w.URL == "" || w.Port <= 0 {
		return errs.Configuration(op, "coordinator.advertise", "worker address %q:%d is incomplete", w.URL, w.Port)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := json.Marshal(registration{WorkerList: []Worker{w}})
	if err != nil {
		return err
	}
	url := strings.TrimRight(baseURL, "/") + "/register_worker"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Configuration(op, "coordinator.url", "%v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errs.IO(op, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return errs.IO(op, url, fmt.Errorf("coordinator answered %s", resp.Status))
	}
	return nil
}
