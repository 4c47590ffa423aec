package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/appetiteclub/apt"
)

// ImportMenu posts a full-layout CSV (Name,Price,Category,Printer) to a
// running terminal, which handles dedup, local caching and queueing.
func ImportMenu(ctx context.Context, config *apt.Config, logger apt.Logger, args []string) error {
	return postCSV(ctx, config, logger, args, "import")
}

// ReorderMenu posts a single-column CSV where row position becomes the new
// display order.
func ReorderMenu(ctx context.Context, config *apt.Config, logger apt.Logger, args []string) error {
	return postCSV(ctx, config, logger, args, "reorder")
}

func postCSV(ctx context.Context, config *apt.Config, logger apt.Logger, args []string, mode string) error {
	file := firstPositional(args)
	if file == "" {
		return fmt.Errorf("usage: %s-menu <file.csv>", mode)
	}

	payload, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", file, err)
	}

	baseURL := config.GetStringOrDef("terminal.url", "http://localhost:8080")
	logger.Info("Posting CSV to terminal", "file", file, "url", baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/menu/import", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/csv")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("terminal request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("terminal returned status %d: %s", resp.StatusCode, string(body))
	}

	var report struct {
		Data struct {
			Added     int `json:"added"`
			Skipped   int `json:"skipped"`
			Reordered int `json:"reordered"`
			NotFound  int `json:"not_found"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &report); err == nil {
		logger.Info("Import report",
			"added", report.Data.Added,
			"skipped", report.Data.Skipped,
			"reordered", report.Data.Reordered,
			"not_found", report.Data.NotFound,
		)
	}
	return nil
}

func firstPositional(args []string) string {
	for _, arg := range args {
		if len(arg) > 0 && arg[0] != '-' {
			return arg
		}
	}
	return ""
}
