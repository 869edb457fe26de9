package pricing

import "errors"

var (
	// ErrInvalidDepositPercentage is returned when a line item carries a deposit percentage outside [0,100].
	ErrInvalidDepositPercentage = errors.New("pricing: deposit percentage out of range")
	// ErrNoPriceTierMatch is returned when the requested quantity falls into a gap between configured tiers.
	ErrNoPriceTierMatch = errors.New("pricing: no price tier matches quantity")
	// ErrOverlappingConfiguration indicates overlapping price tiers or interest rate ranges at registration time.
	ErrOverlappingConfiguration = errors.New("pricing: overlapping configuration ranges")
	// ErrMissingPrice indicates a line item reached total computation without a resolved unit price.
	ErrMissingPrice = errors.New("pricing: line item has no resolved unit price")
	// ErrInvalidQuantity is returned when a quantity is zero or negative.
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")
	// ErrInvalidRange indicates a tier or rate rule whose upper bound sits below its lower bound.
	ErrInvalidRange = errors.New("pricing: range upper bound below lower bound")
)
