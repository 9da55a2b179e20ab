package service

// Actor identifies the authenticated caller of a service operation. ID
// scopes record ownership; CompanyID scopes the shared activity feed.
type Actor struct {
	ID        string
	CompanyID string
}
