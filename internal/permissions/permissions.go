// Package permissions is the capability-assignment ledger: (subject,
// permission, resource) tuples derived from membership roles. All tuples
// are re-derivable from role state; the services keep them in sync inside
// the same transaction as the membership mutation.
package permissions

import "github.com/hugh/taruvi/internal/database/models"

// Organization-scoped permissions
const (
	PermViewOrganization   = "view_organization"
	PermManageOrganization = "manage_organization"
	PermInviteMembers      = "invite_members"
	PermManageSites        = "manage_sites"
)

// Site-scoped permissions
const (
	PermAccessSite      = "access_site"
	PermAdminSite       = "admin_site"
	PermManageSiteUsers = "manage_site_users"
	PermViewClient      = "view_client"
	PermChangeClient    = "change_client"
	PermDeleteClient    = "delete_client"
)

var ownerPermissions = []string{
	PermViewOrganization,
	PermManageOrganization,
	PermInviteMembers,
	PermManageSites,
}

var memberPermissions = []string{
	PermViewOrganization,
}

var sitePermissions = map[string]bool{
	PermAccessSite:      true,
	PermAdminSite:       true,
	PermManageSiteUsers: true,
	PermViewClient:      true,
	PermChangeClient:    true,
	PermDeleteClient:    true,
}

// ForRole is the single source of truth for the role→permission mapping.
// Every role transition (org creation, add member, change role, invitation
// acceptance) derives its grants from here.
func ForRole(role string) []string {
	if role == models.RoleOwner {
		return append([]string(nil), ownerPermissions...)
	}
	return append([]string(nil), memberPermissions...)
}

// ManagementPermissions are the grants removed on demotion; view is always
// retained while the membership exists.
func ManagementPermissions() []string {
	return []string{PermManageOrganization, PermInviteMembers, PermManageSites}
}

// OrganizationPermissions returns the full org-scoped vocabulary.
func OrganizationPermissions() []string {
	return append([]string(nil), ownerPermissions...)
}

// SitePermissions returns the full site-scoped vocabulary.
func SitePermissions() []string {
	perms := make([]string, 0, len(sitePermissions))
	for p := range sitePermissions {
		perms = append(perms, p)
	}
	return perms
}

// IsSitePermission reports whether p belongs to the site vocabulary.
func IsSitePermission(p string) bool {
	return sitePermissions[p]
}

// FilterSitePermissions drops unrecognized names, keeping input order.
// Site-access grants are a best-effort filter, not a validation error.
func FilterSitePermissions(perms []string) []string {
	valid := make([]string, 0, len(perms))
	for _, p := range perms {
		if sitePermissions[p] {
			valid = append(valid, p)
		}
	}
	return valid
}
