package repository

// FilterOp is a list filter comparison.
type FilterOp string

const (
	OpContains   FilterOp = "co"
	OpEquals     FilterOp = "eq"
	OpStartsWith FilterOp = "sw"
	OpEndsWith   FilterOp = "ew"
)

// Filterable and sortable identity attributes.
const (
	AttrName      = "name"
	AttrEmail     = "email"
	AttrPhone     = "phone"
	AttrTaxID     = "tax_id"
	AttrID        = "id"
	AttrCreatedAt = "created_at"
)

// IdentityQuery selects identities for administrative listing.
// Comparisons are case-insensitive. An empty Attribute means no filter.
type IdentityQuery struct {
	Attribute string
	Op        FilterOp
	Value     string
	SortBy    string
	Desc      bool
	Limit     int
	Offset    int
}
