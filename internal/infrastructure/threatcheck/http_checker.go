package threatcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/metrics"
)

// HTTPChecker submits files to a detection backend that answers with a
// JSON DetectionReport.
type HTTPChecker struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPChecker(baseURL, apiKey string, timeout time.Duration) repository.ThreatChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPChecker) Validate(ctx context.Context, path string) (entity.DetectionReport, error) {
	if c.baseURL == "" {
		metrics.IncThreatCheck("error")
		return entity.DetectionReport{}, &entity.BackendError{Err: entity.ErrThreatCheckDisabled}
	}

	report, err := c.submit(ctx, path)
	if err != nil {
		metrics.IncThreatCheck("error")
		return entity.DetectionReport{}, &entity.BackendError{Err: err}
	}

	if report.Detected {
		metrics.IncThreatCheck("detected")
	} else {
		metrics.IncThreatCheck("clean")
	}
	return report, nil
}

func (c *HTTPChecker) submit(ctx context.Context, path string) (entity.DetectionReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return entity.DetectionReport{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	body, contentType := multipartBody(f, filepath.Base(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		_ = body.Close()
		metrics.IncError("threatcheck", "create_request")
		return entity.DetectionReport{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.IncError("threatcheck", "http_do")
		return entity.DetectionReport{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		err := resp.Body.Close()
		if err != nil {
			log.Printf("close body err: %s", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.IncError("threatcheck", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return entity.DetectionReport{}, fmt.Errorf("detection backend error: %d - %s", resp.StatusCode, string(body))
	}

	var report entity.DetectionReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		metrics.IncError("threatcheck", "decode_response")
		return entity.DetectionReport{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if report.ScannedAt.IsZero() {
		report.ScannedAt = time.Now().UTC()
	}
	return report, nil
}

// multipartBody streams r as the "file" field without buffering it in memory.
func multipartBody(r io.Reader, name string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType()
}
