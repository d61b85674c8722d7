package kledo

import (
	"context"
	"net/http"

	"github.com/storeledger/kledo-sync/internal/invoice"
)

// CreateInvoice posts one invoice payload. The full Response is returned so
// the sync boundary can record the body; Response.Rejected distinguishes an
// application-level rejection from the returned transport errors.
func (c *Client) CreateInvoice(ctx context.Context, payload *invoice.Payload) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:   http.MethodPost,
		Endpoint: "woocommerce/invoice",
		Body:     payload,
	})
}
