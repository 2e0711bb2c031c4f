package extract

import "fmt"

// invoiceJSONShape is the fixed response shape requested from every
// extraction call, vision and text alike.
const invoiceJSONShape = `{
  "invoice_number": "value or null",
  "invoice_date": "value or null",
  "due_date": "value or null",
  "vendor_name": "value or null",
  "vendor_address": "value or null",
  "customer_name": "value or null",
  "customer_address": "value or null",
  "line_items": [
    {
      "description": "value",
      "quantity": "value or null",
      "unit_price": "value or null",
      "total": "value or null"
    }
  ],
  "subtotal": "value or null",
  "tax_amount": "value or null",
  "total_amount": "value or null",
  "currency": "value or null",
  "payment_terms": "value or null",
  "additional_fields": {
    "field_name": "value"
  }
}`

// BuildVisionPrompt returns the prompt for image-based extraction.
func BuildVisionPrompt() string {
	return fmt.Sprintf(`Analyze this invoice image and extract all relevant invoice data.

Extract the following information (if available):
- Invoice number
- Invoice date
- Due date
- Vendor/supplier name
- Vendor address
- Customer/buyer name
- Customer address
- Line items (description, quantity, unit price, total)
- Subtotal
- Tax/VAT amount
- Total amount
- Payment terms
- Currency
- Any other relevant invoice fields

Return the extracted data as a JSON object with this structure:
%s

Be thorough and extract all visible information. Use null for missing fields.`, invoiceJSONShape)
}

// textSystemPrompt primes the text-completion path for extraction.
const textSystemPrompt = `You are an expert invoice data extractor. Your task is to analyze invoice text and extract all relevant structured data.

Extract comprehensive invoice information including:
- Invoice number, dates, vendor/customer information
- Line items with quantities and prices
- Financial totals (subtotal, tax, total)
- Payment terms and currency
- Any other relevant fields

Return structured JSON with all extracted information.`

// BuildTextPrompt returns the user prompt for text-based extraction.
func BuildTextPrompt(text string) string {
	return fmt.Sprintf(`Extract all invoice data from this text:

%s

Return the extracted data as a JSON object with this structure:
%s

Extract all available information. Use null for missing fields.`, text, invoiceJSONShape)
}
