package domain

// Requester is the authenticated caller as supplied by the identity provider.
type Requester struct {
	UserID  string
	IsAdmin bool
}

func (r Requester) CanView(order *Order) bool {
	return r.IsAdmin || order.UserID == r.UserID
}
