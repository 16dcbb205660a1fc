package service

// Identity is the request-scoped caller identity: an authenticated user, an
// anonymous guest correlated by an opaque token, or neither.
type Identity struct {
	UserID  string
	GuestID string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

func (i Identity) Known() bool {
	return i.UserID != "" || i.GuestID != ""
}
