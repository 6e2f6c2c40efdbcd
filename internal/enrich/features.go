package enrich

import "github.com/shopspring/decimal"

// Features builds the packet's heterogeneous feature bag with types enforced
// at write time. Values are plain floats, ints, strings and bools so the bag
// serializes cleanly.
type Features struct {
	m map[string]interface{}
}

// NewFeatures returns an empty feature bag.
func NewFeatures() *Features {
	return &Features{m: make(map[string]interface{})}
}

// SetFloat stores v rounded half-up to dp decimals.
func (f *Features) SetFloat(name string, v float64, dp int32) {
	f.m[name] = Round(v, dp)
}

// SetInt stores an integer feature as a float64 for uniform consumption.
func (f *Features) SetInt(name string, v int) {
	f.m[name] = float64(v)
}

// SetInt64 stores a 64-bit integer feature.
func (f *Features) SetInt64(name string, v int64) {
	f.m[name] = float64(v)
}

// SetString stores a string feature.
func (f *Features) SetString(name, v string) {
	f.m[name] = v
}

// Map returns the underlying bag.
func (f *Features) Map() map[string]interface{} {
	return f.m
}

// Round rounds v half-up to dp decimals.
func Round(v float64, dp int32) float64 {
	r, _ := decimal.NewFromFloat(v).Round(dp).Float64()
	return r
}
