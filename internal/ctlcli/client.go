package ctlcli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// jobStatus is the subset of a server job record the CLI prints.
// Decoded loosely from the server's {"job": {...}} envelope — the CLI
// deliberately does not share internal/models, the same way teacher's
// CLI never imports its own server package.
type jobStatus struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	State string `json:"state"`
	Phase string `json:"phase"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func requireConfigured(cfg *Config) error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("server URL not configured; run 'mediaorcctl configure --server <url> --token <token>'")
	}
	return nil
}

func authedRequest(method, path string, body io.Reader, contentType string) (*http.Response, error) {
	cfg := GetConfig()
	if err := requireConfigured(cfg); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, cfg.ServerURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func decodeOrError(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SubmitJobByPath creates a job by uploading a local audio file, the
// same way the watch service and 'submit' command both do.
func SubmitJobByPath(jobType, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("upload", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy file content: %w", err)
	}
	if jobType != "" {
		_ = w.WriteField("type", jobType)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	resp, err := authedRequest(http.MethodPost, "/v2/jobs", body, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// SubmitJobByURL creates a job pointing at a remote audio URL.
func SubmitJobByURL(jobType, audioURL string) (string, error) {
	vals := map[string]string{"audioUrl": audioURL}
	if jobType != "" {
		vals["type"] = jobType
	}
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range vals {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	resp, err := authedRequest(http.MethodPost, "/v2/jobs", body, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// GetJobStatus fetches a job's current state/phase.
func GetJobStatus(jobID string) (*jobStatus, error) {
	resp, err := authedRequest(http.MethodGet, "/v2/jobs/"+jobID, nil, "")
	if err != nil {
		return nil, err
	}
	var out struct {
		Job jobStatus `json:"job"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

type batchItemInput struct {
	AudioPath string `json:"audioPath,omitempty"`
	AudioURL  string `json:"audioUrl,omitempty"`
}

type createBatchBody struct {
	Tasks struct {
		ASR    bool `json:"asr"`
		Demucs bool `json:"demucs"`
	} `json:"tasks"`
	Items []batchItemInput `json:"items"`
}

// SubmitBatch creates a batch from a list of local file paths.
func SubmitBatch(paths []string, wantASR, wantDemucs bool) (string, error) {
	var b createBatchBody
	b.Tasks.ASR = wantASR
	b.Tasks.Demucs = wantDemucs
	for _, p := range paths {
		b.Items = append(b.Items, batchItemInput{AudioPath: p})
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return "", err
	}

	resp, err := authedRequest(http.MethodPost, "/v2/batches", bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	var out struct {
		BatchID string `json:"batchId"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return "", err
	}
	return out.BatchID, nil
}

// CancelBatch requests cancellation of a running batch.
func CancelBatch(batchID string) error {
	resp, err := authedRequest(http.MethodPost, "/v2/batches/"+batchID+"/cancel", nil, "")
	if err != nil {
		return err
	}
	return decodeOrError(resp, nil)
}
