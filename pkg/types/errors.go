package types

import "errors"

// Domain errors for record validation
var (
	ErrMissingID           = errors.New("product id is required")
	ErrMissingTitle        = errors.New("product title is required")
	ErrMissingURI          = errors.New("product uri is required")
	ErrInvalidAvailability = errors.New("availability must be IN_STOCK or OUT_OF_STOCK")
	ErrMissingLanguage     = errors.New("language code is required")
	ErrInvalidAttribute    = errors.New("attribute must set exactly one of text or numbers")
	ErrInvalidPrice        = errors.New("price must be non-negative with a currency code")
)
