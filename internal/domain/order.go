package domain

import "time"

// Order is a read-only snapshot of a storefront order as returned by the
// admin API. JSON tags follow the upstream wire format so the same struct is
// used for decoding responses and for the cache payload.
type Order struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	CreatedAt         time.Time       `json:"created_at"`
	FinancialStatus   string          `json:"financial_status"`
	FulfillmentStatus string          `json:"fulfillment_status,omitempty"`
	TotalPrice        Money           `json:"total_price"`
	Currency          string          `json:"currency"`
	Customer          *Customer       `json:"customer,omitempty"`
	LineItems         []LineItem      `json:"line_items,omitempty"`
	ShippingAddress   *Address        `json:"shipping_address,omitempty"`
	BillingAddress    *Address        `json:"billing_address,omitempty"`
	Note              string          `json:"note,omitempty"`
	NoteAttributes    []NoteAttribute `json:"note_attributes,omitempty"`
	Tags              string          `json:"tags,omitempty"`
}

type Customer struct {
	ID          int64  `json:"id"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	OrdersCount int    `json:"orders_count,omitempty"`
}

type LineItem struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	VariantTitle string          `json:"variant_title,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        Money           `json:"price"`
	SKU          string          `json:"sku,omitempty"`
	Vendor       string          `json:"vendor,omitempty"`
	ProductID    int64           `json:"product_id,omitempty"`
	VariantID    int64           `json:"variant_id,omitempty"`
}

type Address struct {
	Name     string `json:"name,omitempty"`
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Country  string `json:"country,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// NoteAttribute is a free-form key/value pair attached at checkout.
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
