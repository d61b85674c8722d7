package invoice

import (
	"strings"

	"github.com/storeledger/kledo-sync/internal/store"
)

const dateLayout = "2006-01-02"

// itemCategory tags every synced line item with its origin.
const itemCategory = "WooCommerce"

// Payload is the invoice creation body sent to Kledo.
type Payload struct {
	ContactName    string `json:"contact_name"`
	ContactEmail   string `json:"contact_email"`
	ContactAddress string `json:"contact_address"`
	ContactPhone   string `json:"contact_phone"`

	RefNumberPrefix string `json:"ref_number_prefix"`
	RefNumber       int64  `json:"ref_number"`

	TransDate string `json:"trans_date"`
	DueDate   string `json:"due_date"`

	Memo   string `json:"memo"`
	HasTax string `json:"has_tax"`

	Items []Item `json:"items"`

	Warehouse                string  `json:"warehouse"`
	ShippingCost             float64 `json:"shipping_cost"`
	AdditionalDiscountAmount float64 `json:"additional_discount_amount"`

	// Paid and PaidToAccountCode are coupled: the account code is only
	// meaningful when the configured invoice status is "paid".
	Paid              string `json:"paid"`
	PaidToAccountCode string `json:"paid_to_account_code"`

	Tags []string `json:"tags"`
}

// Item is one invoice line.
type Item struct {
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	Desc         string  `json:"desc"`
	Qty          int     `json:"qty"`
	RegularPrice float64 `json:"regular_price"`
	SalePrice    float64 `json:"sale_price"`
	// Photo is the product image URL, or JSON null when unresolvable; the
	// field is always present.
	Photo        *string `json:"photo"`
	CategoryName string  `json:"category_name"`
}

// MapOrder transforms an order into the Kledo invoice payload. Pure and
// deterministic: no I/O, same inputs always produce the same payload.
//
// An order with no completion date (completed and synced in the same breath,
// or backfilled) falls back to the creation date for the due date.
func MapOrder(order *Order, settings store.InvoiceSettings) *Payload {
	dueDate := order.CompletedAt
	if dueDate.IsZero() {
		dueDate = order.CreatedAt
	}

	return &Payload{
		ContactName:    customerName(order),
		ContactEmail:   order.BillingEmail,
		ContactAddress: order.BillingAddress,
		ContactPhone:   order.BillingPhone,

		RefNumberPrefix: settings.Prefix,
		RefNumber:       order.ID,

		TransDate: order.CreatedAt.Format(dateLayout),
		DueDate:   dueDate.Format(dateLayout),

		Memo:   order.CustomerNote,
		HasTax: yesNo(order.TotalTax > 0),

		Items: mapItems(order.Items),

		Warehouse:                settings.Warehouse,
		ShippingCost:             order.ShippingTotal,
		AdditionalDiscountAmount: order.DiscountTotal,

		Paid:              yesNo(settings.Paid()),
		PaidToAccountCode: settings.PaymentAccountCode(),

		Tags: settings.TagList(),
	}
}

// customerName joins the billing first and last names; both absent collapses
// to an empty string, which is not an error.
func customerName(order *Order) string {
	return strings.TrimSpace(order.BillingFirstName + " " + order.BillingLastName)
}

func mapItems(lines []LineItem) []Item {
	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		var photo *string
		if line.ImageURL != "" {
			url := line.ImageURL
			photo = &url
		}
		items = append(items, Item{
			Name:         line.Name,
			Code:         line.SKU,
			Desc:         line.Description,
			Qty:          line.Quantity,
			RegularPrice: line.RegularPrice,
			SalePrice:    line.SalePrice,
			Photo:        photo,
			CategoryName: itemCategory,
		})
	}
	return items
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
