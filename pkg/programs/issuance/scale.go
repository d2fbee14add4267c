package issuance

import "fmt"

// TokenDecimals is the fixed decimal precision for every mint created by
// this program. One human unit is 10^9 base units.
const TokenDecimals uint8 = 9

// Scale converts a human-facing amount into base units using the mint's
// decimals: amount * 10^decimals. The multiplication is checked; wrapping
// silently here would mint or move the wrong quantity.
func Scale(amount uint64, decimals uint8) (uint64, error) {
	if amount == 0 {
		return 0, nil
	}

	factor := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		if factor > ^uint64(0)/10 {
			return 0, fmt.Errorf("%w: 10^%d exceeds u64", ErrAmountOverflow, decimals)
		}
		factor *= 10
	}

	if amount > ^uint64(0)/factor {
		return 0, fmt.Errorf("%w: %d * 10^%d", ErrAmountOverflow, amount, decimals)
	}
	return amount * factor, nil
}
