package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opentill/opentill/services/terminal/internal/pos"
)

// Snapshot is the full remote catalog state returned by Bootstrap.
type Snapshot struct {
	Users          []pos.User         `json:"users"`
	MenuItems      []pos.MenuItem     `json:"menu_items"`
	MenuCategories []pos.MenuCategory `json:"menu_categories"`
	TaxRate        float64            `json:"tax_rate"`
	TableCount     int                `json:"table_count"`
}

// Client is the boundary adapter to the remote catalog/ledger service. Every
// method is a single round trip that fails fast on transport or server
// errors; retrying is the mutation queue's job, never the client's.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Bootstrap fetches the full current remote snapshot.
func (c *Client) Bootstrap(ctx context.Context) (*Snapshot, error) {
	var snapshot Snapshot
	if err := c.do(ctx, http.MethodGet, "/bootstrap", nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *Client) AddUser(ctx context.Context, user pos.User) error {
	return c.do(ctx, http.MethodPost, "/users", user, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/users/"+id.String(), nil, nil)
}

func (c *Client) AddMenuItem(ctx context.Context, item pos.MenuItem) error {
	return c.do(ctx, http.MethodPost, "/menu/items", item, nil)
}

func (c *Client) UpdateMenuItem(ctx context.Context, item pos.MenuItem) error {
	return c.do(ctx, http.MethodPut, "/menu/items/"+item.ID.String(), item, nil)
}

func (c *Client) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/menu/items/"+id.String(), nil, nil)
}

func (c *Client) AddCategory(ctx context.Context, category pos.MenuCategory) error {
	return c.do(ctx, http.MethodPost, "/menu/categories", category, nil)
}

func (c *Client) UpdateCategory(ctx context.Context, category pos.MenuCategory) error {
	return c.do(ctx, http.MethodPut, "/menu/categories/"+category.ID.String(), category, nil)
}

func (c *Client) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/menu/categories/"+id.String(), nil, nil)
}

func (c *Client) AddSale(ctx context.Context, sale pos.Sale) error {
	return c.do(ctx, http.MethodPost, "/sales", sale, nil)
}

func (c *Client) AddHistory(ctx context.Context, entry pos.HistoryEntry) error {
	return c.do(ctx, http.MethodPost, "/history", entry, nil)
}

func (c *Client) SetTaxRate(ctx context.Context, rate float64) error {
	payload := map[string]float64{"rate": rate}
	return c.do(ctx, http.MethodPut, "/settings/tax-rate", payload, nil)
}

func (c *Client) GetSales(ctx context.Context) ([]pos.Sale, error) {
	var sales []pos.Sale
	if err := c.do(ctx, http.MethodGet, "/sales", nil, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (c *Client) GetHistory(ctx context.Context) ([]pos.HistoryEntry, error) {
	var entries []pos.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/history", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Reorder replaces the display order of menu items with the given id list.
func (c *Client) Reorder(ctx context.Context, ids []uuid.UUID) error {
	payload := map[string][]uuid.UUID{"ids": ids}
	return c.do(ctx, http.MethodPut, "/menu/items/reorder", payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cannot encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("catalog service returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
