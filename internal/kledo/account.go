package kledo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// accountCategoryIDs restricts account suggestions to the two fixed Kledo
// finance account categories the payment account may come from.
const accountCategoryIDs = "1,17"

// Account is one payment account suggestion.
type Account struct {
	Name    string `json:"name"`
	RefCode string `json:"ref_code"`
}

// Value renders the "code | name" string stored in the payment account
// setting and echoed by the lookup endpoint.
func (a Account) Value() string {
	return a.RefCode + " | " + a.Name
}

// AccountPage is one page of account suggestions.
type AccountPage struct {
	Accounts    []Account
	CurrentPage int
	PerPage     int
	Total       int
}

// AccountSuggestions searches payment accounts, paginated. A response with
// success:false yields (nil, nil): the lookup logically failed but the call
// itself did not.
func (c *Client) AccountSuggestions(ctx context.Context, search string, page, perPage int) (*AccountPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	query := url.Values{}
	query.Set("finance_account_category_ids", accountCategoryIDs)
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if strings.TrimSpace(search) != "" {
		query.Set("search", search)
	}

	resp, err := c.Do(ctx, &Request{
		Method:   http.MethodGet,
		Endpoint: "finance/accounts/suggestionPerPage",
		Query:    query,
	})
	if err != nil {
		return nil, err
	}
	if resp.Rejected() {
		return nil, nil
	}

	var wire struct {
		Data struct {
			Data        []Account `json:"data"`
			CurrentPage int       `json:"current_page"`
			PerPage     int       `json:"per_page"`
			Total       int       `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode account suggestions: %w", err)
	}

	return &AccountPage{
		Accounts:    wire.Data.Data,
		CurrentPage: wire.Data.CurrentPage,
		PerPage:     wire.Data.PerPage,
		Total:       wire.Data.Total,
	}, nil
}
