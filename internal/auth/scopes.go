package auth

// Scopes checked by the mileage API.
const (
	ScopeDashboardRead   = "dashboard:read"
	ScopeActivitiesRead  = "activities:read"
	ScopeCacheInvalidate = "cache:invalidate"
)
