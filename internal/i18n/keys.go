// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Validation
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationRequired = "validation.required"

	// Contracts
	KeyContractSubmitted = "contract.submitted"
	KeyContractApproved  = "contract.approved"
	KeyContractRejected  = "contract.rejected"
	KeyContractsExpired  = "contract.expired"

	// Sales
	KeySalesImported     = "sales.imported"
	KeySalesImportFailed = "sales.import_failed"

	// Royalties
	KeyRoyaltyCalculated = "royalty.calculated"
	KeyRoyaltyFinalized  = "royalty.finalized"
	KeyRoyaltyCorrected  = "royalty.corrected"

	// Payments
	KeyInvoiceGenerated = "payment.invoice_generated"
	KeyInvoiceExisting  = "payment.invoice_existing"
	KeyPaymentPaid      = "payment.paid"

	// File Upload
	KeyFileRequired = "file.required"
	KeyFileTooLarge = "file.too_large"

	// Rate limiting
	KeyRateLimited = "rate.limited"
)
