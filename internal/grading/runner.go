package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Submission is what gets shipped to the external code runner.
type Submission struct {
	Language  string     `json:"language"`
	Source    string     `json:"source"`
	TestCases []TestCase `json:"test_cases"`
}

// RunReport is the runner's verdict: how many test cases passed.
type RunReport struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

// CodeRunner executes a submission against its test cases. The engine
// treats any error (including timeout) as "report not available yet",
// not as a grading failure.
type CodeRunner interface {
	Run(ctx context.Context, sub Submission) (RunReport, error)
}

// HTTPRunner posts submissions to a runner service.
type HTTPRunner struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPRunner(url string, timeout time.Duration) *HTTPRunner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRunner{URL: url, Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

func (r *HTTPRunner) Run(ctx context.Context, sub Submission) (RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	body, err := json.Marshal(sub)
	if err != nil {
		return RunReport{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return RunReport{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return RunReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RunReport{}, fmt.Errorf("runner returned status %d", resp.StatusCode)
	}
	var report RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return RunReport{}, err
	}
	return report, nil
}
