// ABOUTME: Order-tracking descriptor: schema validation and order.json body mounting
// ABOUTME: Money arrives in minor units and is converted to decimal amounts per currency

package bundle

import (
	"fmt"
	"net/mail"
	"path"
	"regexp"
	"time"
)

// OrderStatus is a normalized order status.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderRefunded   OrderStatus = "REFUNDED"
	OrderCanceled   OrderStatus = "CANCELED"
)

// TranslateOrderStatus maps a commerce backend status onto the statuses a
// wallet order understands. Unknown values collapse to PROCESSING. Already
// normalized values map to themselves, so translating twice is harmless.
func TranslateOrderStatus(status string) OrderStatus {
	switch status {
	case "REFUNDED":
		return OrderRefunded
	case "SHIPPED":
		return OrderShipped
	case "CANCELED":
		return OrderCanceled
	case "COMPLETED", "DELIVERED":
		return OrderDelivered
	default:
		return OrderProcessing
	}
}

// lifecycle returns the coarse order state: open, completed or cancelled.
func (s OrderStatus) lifecycle() string {
	switch s {
	case OrderDelivered:
		return "completed"
	case OrderCanceled, OrderRefunded:
		return "cancelled"
	default:
		return "open"
	}
}

// Totals are expressed in minor currency units (cents).
type Totals struct {
	GrandTotal int64 `json:"grandTotal"`
	SubTotal   int64 `json:"subTotal"`
	Shipping   int64 `json:"shipping"`
	Tax        int64 `json:"tax"`
	Tip        int64 `json:"tip"`
}

// OrderItem is one purchased product. Price is in minor units.
type OrderItem struct {
	Image       string `json:"image"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
	ProductName string `json:"productName"`
	VariantName string `json:"variantName,omitempty"`
}

// Customer identifies who placed the order.
type Customer struct {
	EmailAddress     string `json:"emailAddress"`
	FamilyName       string `json:"familyName,omitempty"`
	GivenName        string `json:"givenName,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
	PhoneNumber      string `json:"phoneNumber,omitempty"`
}

// Fulfillment tracks delivery or pickup of part of an order.
type Fulfillment struct {
	FulfillmentIdentifier string `json:"fulfillmentIdentifier"`
	Status                string `json:"status"`
	FulfillmentType       string `json:"fulfillmentType"`
	TrackingNumber        string `json:"trackingNumber,omitempty"`
	EstimatedDeliveryAt   string `json:"estimatedDeliveryAt,omitempty"`
	Notes                 string `json:"notes,omitempty"`
}

// OrderDescriptor describes an order-tracking bundle.
type OrderDescriptor struct {
	OrderIdentifier    string        `json:"orderIdentifier"`
	OrderNumber        string        `json:"orderNumber"`
	Currency           string        `json:"currency"`
	Totals             Totals        `json:"totals"`
	OrderItems         []OrderItem   `json:"orderItems"`
	Customer           Customer      `json:"customer"`
	OrderStatus        string        `json:"orderStatus,omitempty"`
	PaymentStatus      string        `json:"paymentStatus,omitempty"`
	Fulfillments       []Fulfillment `json:"fulfillments,omitempty"`
	OrderManagementURL string        `json:"orderManagementURL,omitempty"`

	// UpdatedAt is stamped from the stored record, not decoded from data.
	UpdatedAt time.Time `json:"-"`
}

// Money is a decimal amount in a currency.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// MinorUnits converts an amount in cents to a decimal Money value.
func MinorUnits(v int64, currency string) Money {
	return Money{Amount: float64(v) / 100, Currency: currency}
}

// SummaryItem is one labeled line of the payment summary.
type SummaryItem struct {
	Label string `json:"label"`
	Value Money  `json:"value"`
}

// Payment is the payment section of order.json.
type Payment struct {
	Status       string        `json:"status"`
	Total        Money         `json:"total"`
	SummaryItems []SummaryItem `json:"summaryItems"`
}

// LineItem is a line of order.json.
type LineItem struct {
	Image    string `json:"image"`
	Price    Money  `json:"price"`
	Quantity int    `json:"quantity"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

func (d *OrderDescriptor) Kind() Kind { return KindOrder }

// Validate checks identifiers, money fields, item lists, and customer.
func (d *OrderDescriptor) Validate() error {
	if err := required("orderIdentifier", d.OrderIdentifier); err != nil {
		return err
	}
	if err := required("orderNumber", d.OrderNumber); err != nil {
		return err
	}
	if !currencyCode.MatchString(d.Currency) {
		return &FieldError{Field: "currency", Reason: "must be a three-letter ISO 4217 code"}
	}

	money := []struct {
		field string
		value int64
	}{
		{"totals.grandTotal", d.Totals.GrandTotal},
		{"totals.subTotal", d.Totals.SubTotal},
		{"totals.shipping", d.Totals.Shipping},
		{"totals.tax", d.Totals.Tax},
		{"totals.tip", d.Totals.Tip},
	}
	for _, m := range money {
		if m.value < 0 {
			return &FieldError{Field: m.field, Reason: "must not be negative"}
		}
	}

	for i, item := range d.OrderItems {
		prefix := fmt.Sprintf("orderItems[%d]", i)
		if err := required(prefix+".productName", item.ProductName); err != nil {
			return err
		}
		if item.Quantity <= 0 {
			return &FieldError{Field: prefix + ".quantity", Reason: "must be positive"}
		}
		if item.Price < 0 {
			return &FieldError{Field: prefix + ".price", Reason: "must not be negative"}
		}
	}

	if err := required("customer.emailAddress", d.Customer.EmailAddress); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(d.Customer.EmailAddress); err != nil {
		return &FieldError{Field: "customer.emailAddress", Reason: "must be an email address"}
	}

	for i, f := range d.Fulfillments {
		prefix := fmt.Sprintf("fulfillments[%d]", i)
		if err := required(prefix+".fulfillmentIdentifier", f.FulfillmentIdentifier); err != nil {
			return err
		}
		if f.FulfillmentType != "shipping" && f.FulfillmentType != "pickup" {
			return &FieldError{Field: prefix + ".fulfillmentType", Reason: `must be "shipping" or "pickup"`}
		}
	}

	if d.OrderManagementURL != "" {
		if err := absoluteURL("orderManagementURL", d.OrderManagementURL); err != nil {
			return err
		}
	}
	return nil
}

// Payment mounts the payment section from the minor-unit totals.
func (d *OrderDescriptor) Payment() Payment {
	status := d.PaymentStatus
	if status == "" {
		status = "paid"
	}
	return Payment{
		Status: status,
		Total:  MinorUnits(d.Totals.GrandTotal, d.Currency),
		SummaryItems: []SummaryItem{
			{Label: "Subtotal", Value: MinorUnits(d.Totals.SubTotal, d.Currency)},
			{Label: "Shipping", Value: MinorUnits(d.Totals.Shipping, d.Currency)},
			{Label: "Tax", Value: MinorUnits(d.Totals.Tax, d.Currency)},
			{Label: "Tip", Value: MinorUnits(d.Totals.Tip, d.Currency)},
		},
	}
}

// LineItems mounts the line items. Images are referenced by base name
// because the bundle stores them at its root.
func (d *OrderDescriptor) LineItems() []LineItem {
	items := make([]LineItem, 0, len(d.OrderItems))
	for _, item := range d.OrderItems {
		image := ""
		if item.Image != "" {
			image = path.Base(item.Image)
		}
		items = append(items, LineItem{
			Image:    image,
			Price:    MinorUnits(item.Price, d.Currency),
			Quantity: item.Quantity,
			Title:    item.ProductName,
			Subtitle: item.VariantName,
		})
	}
	return items
}

func (d *OrderDescriptor) Fields() (map[string]any, error) {
	status := TranslateOrderStatus(d.OrderStatus)
	fields := map[string]any{
		"orderIdentifier":   d.OrderIdentifier,
		"orderNumber":       d.OrderNumber,
		"customer":          d.Customer,
		"payment":           d.Payment(),
		"lineItems":         d.LineItems(),
		"status":            status.lifecycle(),
		"statusDescription": string(status),
	}
	if d.OrderManagementURL != "" {
		fields["orderManagementURL"] = d.OrderManagementURL
	}
	if len(d.Fulfillments) > 0 {
		fields["fulfillments"] = d.Fulfillments
	}
	if !d.UpdatedAt.IsZero() {
		fields["updatedAt"] = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return fields, nil
}
