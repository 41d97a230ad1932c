package domain

import "slices"

// RecipientConfig holds an administrator's notification preferences.
type RecipientConfig struct {
	ID               string
	Enabled          bool
	CriticalsEnabled bool
	MessagingHandle  string
	// TenantScope restricts notifications to the listed tenants.
	// Empty means every tenant the recipient administers.
	TenantScope []string
}

// WantsCriticals reports whether the recipient should receive critical
// notifications for the given tenant.
func (r RecipientConfig) WantsCriticals(tenantID string) bool {
	if !r.Enabled || !r.CriticalsEnabled || r.MessagingHandle == "" {
		return false
	}
	return len(r.TenantScope) == 0 || slices.Contains(r.TenantScope, tenantID)
}
