package catalog

// City is one searchable endpoint of the fare matrix.
type City struct {
	Code   string `json:"code" yaml:"code"`
	Name   string `json:"name" yaml:"name"`
	Region string `json:"region" yaml:"region"`
}

// Travel regions used in the default city set.
const (
	RegionNorthAmerica = "NORTH_AMERICA"
	RegionLatam        = "LATAM"
	RegionEMEA         = "EMEA"
	RegionAsia         = "ASIA"
	RegionIndia        = "INDIA"
	RegionANZ          = "ANZ"
)

// DefaultCities returns the built-in city set, ordered by region. Order is
// stable so catalog generation is deterministic for a given seed.
func DefaultCities() []City {
	return []City{
		{Code: "SEA", Name: "SEATTLE", Region: RegionNorthAmerica},
		{Code: "NYC", Name: "NEW YORK", Region: RegionNorthAmerica},
		{Code: "SFO", Name: "SAN FRANCISCO", Region: RegionNorthAmerica},
		{Code: "YYZ", Name: "TORONTO", Region: RegionNorthAmerica},
		{Code: "MEX", Name: "MEXICO CITY", Region: RegionLatam},
		{Code: "SAO", Name: "SAO PAULO", Region: RegionLatam},
		{Code: "EZE", Name: "BUENOS AIRES", Region: RegionLatam},
		{Code: "LON", Name: "LONDON", Region: RegionEMEA},
		{Code: "PAR", Name: "PARIS", Region: RegionEMEA},
		{Code: "BER", Name: "BERLIN", Region: RegionEMEA},
		{Code: "DXB", Name: "DUBAI", Region: RegionEMEA},
		{Code: "TYO", Name: "TOKYO", Region: RegionAsia},
		{Code: "SIN", Name: "SINGAPORE", Region: RegionAsia},
		{Code: "HKG", Name: "HONG KONG", Region: RegionAsia},
		{Code: "BLR", Name: "BENGALURU", Region: RegionIndia},
		{Code: "BOM", Name: "MUMBAI", Region: RegionIndia},
		{Code: "SYD", Name: "SYDNEY", Region: RegionANZ},
		{Code: "AKL", Name: "AUCKLAND", Region: RegionANZ},
	}
}
