package enums

// StockLocation names the buckets stock moves between in the ledger.
type StockLocation string

const (
	LocationCentral   StockLocation = "central"
	LocationReserved  StockLocation = "reserved"
	LocationDriver    StockLocation = "driver"
	LocationSupplier  StockLocation = "supplier"
	LocationInbound   StockLocation = "inbound"
	LocationConsumed  StockLocation = "consumed"
	LocationCancelled StockLocation = "cancelled"
)

var validStockLocations = []StockLocation{
	LocationCentral,
	LocationReserved,
	LocationDriver,
	LocationSupplier,
	LocationInbound,
	LocationConsumed,
	LocationCancelled,
}

// String implements fmt.Stringer.
func (l StockLocation) String() string {
	return string(l)
}

// IsValid reports whether the value is a known StockLocation.
func (l StockLocation) IsValid() bool {
	for _, candidate := range validStockLocations {
		if candidate == l {
			return true
		}
	}
	return false
}
