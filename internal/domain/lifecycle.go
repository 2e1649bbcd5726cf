package domain

// LotKind names the ledger a lot belongs to.
type LotKind string

const (
	LotOrigin  LotKind = "origin"
	LotProduct LotKind = "product"
)

// Transition defines a valid state change: an event moves a lot from Src to Dst.
type Transition[S ~string, E ~string] struct {
	Event E
	Src   S
	Dst   S
}

// Location is the geolocation a lot was produced at, kept as supplied.
type Location struct {
	Latitude  string
	Longitude string
}
