package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LineItem is one invoice line as extracted by the LLM.
type LineItem struct {
	Description *string `json:"description"`
	Quantity    *string `json:"quantity"`
	UnitPrice   *string `json:"unit_price"`
	Total       *string `json:"total"`
}

// InvoiceData is the extracted invoice payload. Known fields are typed;
// everything the model returns beyond them lands in AdditionalFields, so no
// key is ever dropped on the floor. The LLM may omit or add keys freely.
type InvoiceData struct {
	InvoiceNumber   *string    `json:"invoice_number"`
	InvoiceDate     *string    `json:"invoice_date"`
	DueDate         *string    `json:"due_date"`
	VendorName      *string    `json:"vendor_name"`
	VendorAddress   *string    `json:"vendor_address"`
	CustomerName    *string    `json:"customer_name"`
	CustomerAddress *string    `json:"customer_address"`
	LineItems       []LineItem `json:"line_items"`
	Subtotal        *string    `json:"subtotal"`
	TaxAmount       *string    `json:"tax_amount"`
	TotalAmount     *string    `json:"total_amount"`
	Currency        *string    `json:"currency"`
	PaymentTerms    *string    `json:"payment_terms"`

	AdditionalFields map[string]any `json:"additional_fields,omitempty"`
}

// knownFields are the top-level keys routed into typed fields; anything else
// is folded into AdditionalFields during unmarshaling.
var knownFields = map[string]struct{}{
	"invoice_number": {}, "invoice_date": {}, "due_date": {},
	"vendor_name": {}, "vendor_address": {},
	"customer_name": {}, "customer_address": {},
	"line_items": {}, "subtotal": {}, "tax_amount": {}, "total_amount": {},
	"currency": {}, "payment_terms": {}, "additional_fields": {},
}

// UnmarshalJSON accepts the loose shapes LLMs actually return: scalar fields
// may arrive as strings or numbers, unknown keys are preserved under
// AdditionalFields, and an explicit additional_fields object is merged in.
func (d *InvoiceData) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.InvoiceNumber = toStringPtr(raw["invoice_number"])
	d.InvoiceDate = toStringPtr(raw["invoice_date"])
	d.DueDate = toStringPtr(raw["due_date"])
	d.VendorName = toStringPtr(raw["vendor_name"])
	d.VendorAddress = toStringPtr(raw["vendor_address"])
	d.CustomerName = toStringPtr(raw["customer_name"])
	d.CustomerAddress = toStringPtr(raw["customer_address"])
	d.Subtotal = toStringPtr(raw["subtotal"])
	d.TaxAmount = toStringPtr(raw["tax_amount"])
	d.TotalAmount = toStringPtr(raw["total_amount"])
	d.Currency = toStringPtr(raw["currency"])
	d.PaymentTerms = toStringPtr(raw["payment_terms"])

	if items, ok := raw["line_items"].([]any); ok {
		d.LineItems = make([]LineItem, 0, len(items))
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			d.LineItems = append(d.LineItems, LineItem{
				Description: toStringPtr(m["description"]),
				Quantity:    toStringPtr(m["quantity"]),
				UnitPrice:   toStringPtr(m["unit_price"]),
				Total:       toStringPtr(m["total"]),
			})
		}
	}

	extra := map[string]any{}
	if af, ok := raw["additional_fields"].(map[string]any); ok {
		for k, v := range af {
			extra[k] = v
		}
	}
	for k, v := range raw {
		if _, ok := knownFields[k]; !ok {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		d.AdditionalFields = extra
	}
	return nil
}

// MarshalJSON emits the typed fields plus the additional_fields object, so the
// mapping prompt and audit artifacts see everything that was extracted.
func (d InvoiceData) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"invoice_number":   d.InvoiceNumber,
		"invoice_date":     d.InvoiceDate,
		"due_date":         d.DueDate,
		"vendor_name":      d.VendorName,
		"vendor_address":   d.VendorAddress,
		"customer_name":    d.CustomerName,
		"customer_address": d.CustomerAddress,
		"line_items":       d.LineItems,
		"subtotal":         d.Subtotal,
		"tax_amount":       d.TaxAmount,
		"total_amount":     d.TotalAmount,
		"currency":         d.Currency,
		"payment_terms":    d.PaymentTerms,
	}
	if len(d.AdditionalFields) > 0 {
		out["additional_fields"] = d.AdditionalFields
	}
	return json.Marshal(out)
}

// toStringPtr coerces a decoded JSON scalar to a string pointer. Nulls and
// missing keys map to nil; numbers and booleans are formatted, not rejected.
func toStringPtr(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	case json.Number:
		s := t.String()
		return &s
	default:
		s := fmt.Sprintf("%v", t)
		return &s
	}
}
