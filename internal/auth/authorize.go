package auth

// Authorize checks identity against the allowed roles. It performs no I/O.
func Authorize(id *Identity, allowed ...Role) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !id.HasAnyRole(allowed...) {
		return ErrRoleDenied
	}
	return nil
}
