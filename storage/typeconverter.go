package storage

import "github.com/letsencrypt/borp"

// hubTypeConverter is the borp.TypeConverter for event log and declaration
// rows. Every field on EventRow and Declaration already maps onto a
// native SQL column type ([]byte, string, int64, bool), so unlike
// sa/type-converter.go's BoulderTypeConverter this one has nothing to
// convert; it exists because borp.DbMap requires a TypeConverter and a nil
// one panics on the first Insert.
type hubTypeConverter struct{}

func (hubTypeConverter) ToDb(val interface{}) (interface{}, error) {
	return val, nil
}

func (hubTypeConverter) FromDb(target interface{}) (borp.CustomScanner, bool) {
	return borp.CustomScanner{}, false
}
