package rbac

// Capability names. Keep these stable; they are part of the authorization
// contract and mirror the flags on the user record.
const (
	CapabilityCall  = "can_call"
	CapabilityAdmin = "is_admin"
)
