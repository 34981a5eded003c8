package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipeline-validation/internal/checks"
	"pipeline-validation/internal/orchestrator"
)

type apiClient struct {
	BaseURL string
	HTTP    *http.Client
}

type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Detail)
}

func newAPIClient(cmd *cobra.Command, timeout time.Duration) *apiClient {
	base, _ := cmd.Flags().GetString("api")
	return &apiClient{BaseURL: strings.TrimRight(base, "/"), HTTP: &http.Client{Timeout: timeout}}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	payload := bytes.NewReader(nil)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Detail == "" {
			errBody.Detail = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Detail: errBody.Detail}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// testPayload is the create body; server-owned timestamps are left out.
type testPayload struct {
	ID           string            `json:"test_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Type         checks.TestType   `json:"test_type"`
	Query        string            `json:"query"`
	Parameters   checks.Parameters `json:"parameters"`
	Enabled      bool              `json:"enabled"`
	Severity     checks.Severity   `json:"severity"`
	ConnectionID string            `json:"connection_id"`
	Tags         []string          `json:"tags"`
}

func (c *apiClient) CreateTest(ctx context.Context, test checks.Test) (checks.Test, error) {
	body := testPayload{
		ID:           test.ID,
		Name:         test.Name,
		Description:  test.Description,
		Type:         test.Type,
		Query:        test.Query,
		Parameters:   test.Parameters,
		Enabled:      test.Enabled,
		Severity:     test.Severity,
		ConnectionID: test.ConnectionID,
		Tags:         test.Tags,
	}
	var created checks.Test
	_, err := c.do(ctx, http.MethodPost, "/v1/tests", body, &created)
	return created, err
}

func (c *apiClient) RunTest(ctx context.Context, testID string, wait bool) (orchestrator.RunResult, error) {
	var result orchestrator.RunResult
	_, err := c.do(ctx, http.MethodPost, "/v1/tests/"+testID+"/run", map[string]bool{"wait": wait}, &result)
	return result, err
}

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create anomaly tests from a queries file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			connectionID, _ := cmd.Flags().GetString("connection")
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			queries, err := loadQueries(f)
			if err != nil {
				return err
			}
			client := newAPIClient(cmd, 30*time.Second)
			created := 0
			for _, q := range queries {
				test, err := q.toTest(connectionID)
				if err != nil {
					return err
				}
				if _, err := client.CreateTest(cmd.Context(), test); err != nil {
					var apiErr *apiError
					if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
						fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: already exists\n", test.ID)
						continue
					}
					return fmt.Errorf("create %s: %w", test.ID, err)
				}
				created++
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", test.ID, q.Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d queries imported\n", created, len(queries))
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "queries.json", "Queries file")
	cmd.Flags().String("connection", "", "Connection id for entries that do not name one")
	return cmd
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <test_id>",
		Short: "Trigger a test run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetBool("wait")
			client := newAPIClient(cmd, 2*time.Minute)
			result, err := client.RunTest(cmd.Context(), args[0], wait)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if result.Execution != nil && result.Execution.Status != checks.StatusPassed {
				return fmt.Errorf("test %s finished with status %s", args[0], result.Execution.Status)
			}
			return nil
		},
	}
	cmd.Flags().Bool("wait", false, "Wait for the execution to finish")
	return cmd
}
