package commerce

// ValidateOrder checks an order against its line items without touching the
// store. Rules run in a fixed precedence and the first violation wins:
// required fields, per-currency minimum, item/order currency match, exact
// item-total match, sku references. All arithmetic is integer minor units.
func ValidateOrder(order *Order, items []*OrderItem, minimums map[Currency]int64) error {
	switch {
	case order.BuyerID == "":
		return newError(KindInvalidArgument, order.ID, "buyer is required")
	case order.SellerID == "":
		return newError(KindInvalidArgument, order.ID, "seller is required")
	case order.ExpirationDate.IsZero():
		return newError(KindInvalidArgument, order.ID, "expiration date is required")
	case order.Currency == "":
		return newError(KindInvalidArgument, order.ID, "currency is required")
	case order.Amount < 0:
		return newError(KindInvalidAmount, order.ID, "amount must not be negative")
	}

	if order.Amount > 0 {
		min, ok := minimums[order.Currency]
		if !ok {
			return newError(KindInvalidCurrency, order.ID, "unsupported currency %s", order.Currency)
		}
		if order.Amount < min {
			return newError(KindInvalidAmount, order.ID,
				"amount %d is below the %s minimum of %d", order.Amount, order.Currency, min)
		}
	}

	var total int64
	for _, item := range items {
		if item.Currency != order.Currency {
			return newError(KindInvalidCurrency, order.ID,
				"item %s currency %s does not match order currency %s", item.ID, item.Currency, order.Currency)
		}
		total += item.Amount * item.Quantity
	}
	if total != order.Amount {
		return newError(KindInvalidAmount, order.ID,
			"item total %d does not match order amount %d", total, order.Amount)
	}

	for _, item := range items {
		if item.Type == ItemTypeSKU && (item.ProductID == "" || item.SKUID == "") {
			return newError(KindInvalidArgument, order.ID,
				"item %s needs both product and sku references", item.ID)
		}
	}
	return nil
}
