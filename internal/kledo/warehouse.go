package kledo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Warehouse is one Kledo warehouse.
type Warehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Warehouses fetches the full warehouse list. A response with success:false
// yields (nil, nil).
func (c *Client) Warehouses(ctx context.Context) ([]Warehouse, error) {
	resp, err := c.Do(ctx, &Request{
		Method:   http.MethodGet,
		Endpoint: "finance/warehouses",
	})
	if err != nil {
		return nil, err
	}
	if resp.Rejected() {
		return nil, nil
	}

	var wire struct {
		Data struct {
			Data []Warehouse `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode warehouses: %w", err)
	}

	return wire.Data.Data, nil
}
