package domain

// Account identifies a supply chain participant. Accounts are opaque and
// supplied by the caller's environment; the empty account means "unset".
type Account string

// EscrowAccount holds attached payments for the duration of one settlement.
// Its balance is zero between operations.
const EscrowAccount Account = "ledger:escrow"

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool { return a == "" }

// Role is a capability tag that can be granted to an account.
type Role string

const (
	RoleOriginProducer Role = "ORIGIN_PRODUCER"
	RoleManufacturer   Role = "MANUFACTURER"
	RoleDistributor    Role = "DISTRIBUTOR"
	RoleRetailer       Role = "RETAILER"
	RoleConsumer       Role = "CONSUMER"
	RoleAdmin          Role = "ADMIN"
)

// Roles lists every capability tag in declaration order.
var Roles = []Role{
	RoleOriginProducer,
	RoleManufacturer,
	RoleDistributor,
	RoleRetailer,
	RoleConsumer,
	RoleAdmin,
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts a tag into a Role, rejecting unknown tags.
func ParseRole(tag string) (Role, error) {
	r := Role(tag)
	if !r.Valid() {
		return "", &ArgumentError{Field: "role", Reason: "unknown role " + tag}
	}
	return r, nil
}

// Grant is a capability held by an account.
type Grant struct {
	Role   Role
	Holder Account
}
