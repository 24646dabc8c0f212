package domain

// Base is a physical location holding assets. Bases are referenced by
// ledger entries but never owned by them.
type Base struct {
	ID       string
	Name     string
	Location string
}

// AssetType is a named category of equipment ("rifle", "jeep"), globally
// unique by name. Immutable once referenced by a committed entry.
type AssetType struct {
	ID   string
	Name string
}

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleCommander Role = "COMMANDER"
	RoleLogistics Role = "LOGISTICS"
)

// User is the authenticated identity tuple supplied per request by the
// identity collaborator. The core trusts it and never reads ambient state.
type User struct {
	ID         string
	Role       Role
	HomeBaseID string
}

// BalanceKey addresses one balance record.
type BalanceKey struct {
	BaseID      string
	AssetTypeID string
}

// BalanceRecord holds the current quantity of an asset type at a base.
// Quantity is never negative; Version increases by one on every mutation.
type BalanceRecord struct {
	BaseID      string
	AssetTypeID string
	Quantity    int64
	Version     int64
}

func (b BalanceRecord) Key() BalanceKey {
	return BalanceKey{BaseID: b.BaseID, AssetTypeID: b.AssetTypeID}
}
