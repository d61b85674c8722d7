package invoice

import "time"

// Order is the read-only order aggregate received from the commerce platform
// when an order is marked completed. Fields mirror the WooCommerce order
// shape the webhook delivers; nothing here is ever written back.
type Order struct {
	ID int64 `json:"id"`

	BillingFirstName string `json:"billing_first_name"`
	BillingLastName  string `json:"billing_last_name"`
	BillingEmail     string `json:"billing_email"`
	BillingAddress   string `json:"billing_address"`
	BillingPhone     string `json:"billing_phone"`

	CustomerNote string `json:"customer_note"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`

	ShippingTotal float64 `json:"shipping_total"`
	DiscountTotal float64 `json:"discount_total"`
	TotalTax      float64 `json:"total_tax"`

	Items []LineItem `json:"items"`
}

// LineItem is one purchased product line.
type LineItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Description  string  `json:"description"`
	Quantity     int     `json:"quantity"`
	RegularPrice float64 `json:"regular_price"`
	SalePrice    float64 `json:"sale_price"`
	// ImageURL is the resolved product image URL, empty when the product has
	// no resolvable image.
	ImageURL string `json:"image_url"`
}
