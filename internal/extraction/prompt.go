package extraction

const systemInstruction = `You read Australian receipts, tax invoices and bills for a bookkeeping system.
Answer with a single JSON object and nothing else.`

const extractionPrompt = `Extract the following fields from this document and return them as JSON:

{
  "purchaseDate": "YYYY-MM-DD",
  "vendorName": "trading name of the seller",
  "vendorAbn": "11 digit ABN, digits only",
  "vendorAddress": "street address of the seller",
  "documentType": "receipt | tax invoice | invoice | bill",
  "receiptNumber": "receipt or invoice number",
  "paymentType": "cash | card | eftpos | bank transfer | other",
  "amountExclTax": number,
  "taxAmount": number (GST),
  "cashOutAmount": number or null,
  "discountAmount": number or null,
  "surchargeAmount": number or null,
  "totalAmount": number (total of goods and services including GST),
  "totalPaidAmount": number (amount actually charged, including any cash out) or null,
  "expenseCategory": "one of: fuel, meals, travel, office supplies, software, utilities, repairs, advertising, other",
  "taxStatus": "GST inclusive | GST free | no GST",
  "taxType": "GST | GST free | BAS excluded"
}

Rules:
- Amounts are plain numbers without currency symbols.
- Use null for anything that is not printed on the document.
- Do not guess an ABN.
- If the document is not a receipt, invoice or bill, return exactly {"error": "Not a receipt"}.`

// textPrompt is used when the document text was already extracted locally.
func textPrompt(text string) string {
	return extractionPrompt + "\n\nDocument text:\n" + text
}
