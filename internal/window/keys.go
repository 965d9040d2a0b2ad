package window

// CacheKey identifies the cached result of one date and window selector.
func CacheKey(date, selector string) string {
	if selector == "" {
		selector = Full
	}
	return date + "-" + selector
}

// DetailKey identifies the bulk whole-day listing of date.
func DetailKey(date string) string {
	return date + "_full"
}

// DeliveryKey identifies the delivery-date lookup of date.
func DeliveryKey(date string) string {
	return "delivery_" + date
}
