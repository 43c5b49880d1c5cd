package mathpix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/infrastructure/resilience"
)

// Converter turns PDF bytes into Mathpix-Markdown via the v3/pdf API:
// submit the file, poll the job until it completes, then fetch the .mmd
// result. Submission failures are not retried here; the caller owns the
// retry decision for the whole conversion.
type Converter struct {
	baseURL      string
	appID        string
	appKey       string
	pollInterval time.Duration
	httpClient   *http.Client
	executor     *resilience.Executor
}

func New(baseURL, appID, appKey string, pollInterval time.Duration) *Converter {
	return NewWithExecutor(baseURL, appID, appKey, pollInterval, nil)
}

// NewWithExecutor routes poll and fetch calls through executor; submit
// still runs at most once per Convert. A nil executor means plain
// single-attempt calls everywhere.
func NewWithExecutor(
	baseURL, appID, appKey string,
	pollInterval time.Duration,
	executor *resilience.Executor,
) *Converter {
	if baseURL == "" {
		baseURL = "https://api.mathpix.com/v3/pdf"
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Converter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		appID:        appID,
		appKey:       appKey,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		executor:     executor,
	}
}

func (c *Converter) Convert(ctx context.Context, data []byte) (string, error) {
	var jobID string
	err := c.run(ctx, "submit", classifySubmitError, func(ctx context.Context) error {
		var err error
		jobID, err = c.submit(ctx, data)
		return err
	})
	if err != nil {
		return "", err
	}

	if err := c.pollUntilDone(ctx, jobID); err != nil {
		return "", err
	}

	var markdown string
	err = c.run(ctx, "fetch", classifyTransferError, func(ctx context.Context) error {
		var err error
		markdown, err = c.fetchMarkdown(ctx, jobID)
		return err
	})
	if err != nil {
		return "", err
	}
	return markdown, nil
}

func (c *Converter) run(
	ctx context.Context,
	operation string,
	classifier resilience.ErrorClassifier,
	fn func(context.Context) error,
) error {
	if c.executor != nil {
		return c.executor.Execute(ctx, "mathpix."+operation, fn, classifier)
	}
	return fn(ctx)
}

func (c *Converter) submit(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "upload.pdf")
	if err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write multipart file: %w", err)
	}

	options := map[string]any{
		"streaming":             false,
		"fullwidth_punctuation": false,
		"include_diagram_text":  true,
		"rm_spaces":             true,
		"rm_fonts":              true,
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	if err := form.WriteField("options_json", string(optionsJSON)); err != nil {
		return "", fmt.Errorf("write options field: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &body)
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mathpix submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", conversionError("submit", readDiagnostic(resp.Body))
	}

	var submitResp struct {
		PDFID string `json:"pdf_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if submitResp.PDFID == "" {
		return "", conversionError("submit", "response carried no pdf_id")
	}
	return submitResp.PDFID, nil
}

// pollUntilDone checks the job at a fixed interval until the remote side
// reports completed or error. There is no overall deadline beyond ctx.
func (c *Converter) pollUntilDone(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status, diagnostic string
		err := c.run(ctx, "poll", classifyTransferError, func(ctx context.Context) error {
			var err error
			status, diagnostic, err = c.pollOnce(ctx, jobID)
			return err
		})
		if err != nil {
			return err
		}
		switch status {
		case "completed":
			return nil
		case "error":
			return conversionError("convert", diagnostic)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Converter) pollOnce(ctx context.Context, jobID string) (status, diagnostic string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+jobID, nil)
	if err != nil {
		return "", "", fmt.Errorf("create poll request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("mathpix poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", conversionError("poll", readDiagnostic(resp.Body))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", "", fmt.Errorf("read poll response: %w", err)
	}
	var pollResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &pollResp); err != nil {
		return "", "", fmt.Errorf("decode poll response: %w", err)
	}
	return pollResp.Status, strings.TrimSpace(string(raw)), nil
}

func (c *Converter) fetchMarkdown(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+jobID+".mmd", nil)
	if err != nil {
		return "", fmt.Errorf("create fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mathpix fetch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", conversionError("fetch", readDiagnostic(resp.Body))
	}

	mmd, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read markdown body: %w", err)
	}
	return string(mmd), nil
}

func (c *Converter) authorize(req *http.Request) {
	req.Header.Set("app_id", c.appID)
	req.Header.Set("app_key", c.appKey)
}

func readDiagnostic(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(body))
}

func conversionError(operation, diagnostic string) error {
	if diagnostic == "" {
		diagnostic = "no diagnostic payload"
	}
	return domain.WrapError(domain.ErrExtractionFailed, "mathpix "+operation, fmt.Errorf("%s", diagnostic))
}
