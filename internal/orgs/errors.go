package orgs

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyMember    = errors.New("user is already a member")
	ErrNotMember        = errors.New("user is not an active organization member")
	ErrQuotaExceeded    = errors.New("organization quota exceeded")
	ErrLastOwner        = errors.New("organization must keep at least one owner")
	ErrDuplicateSite    = errors.New("site is already assigned to this organization")
	ErrSiteNotLinked    = errors.New("site does not belong to this organization")
	ErrInvalidRole      = errors.New("invalid role")
)
