package commerce

// Currency is an upper-case ISO 4217 code. All amounts are integers in the
// currency's minor unit.
type Currency string

const (
	JPY Currency = "JPY"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// DefaultMinimums is the smallest chargeable amount per currency, in minor
// units. Gateways reject charges below these, so the validator does too.
// Override via Config.Minimums.
func DefaultMinimums() map[Currency]int64 {
	return map[Currency]int64{
		JPY: 50,
		USD: 50,
		EUR: 50,
		GBP: 30,
	}
}
