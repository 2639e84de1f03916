package model

// GeometryFile is a committed geometry blob of an exchange.
type GeometryFile struct {
	AssetID       string `json:"assetId" yaml:"assetId"`
	Name          string `json:"name" yaml:"name"`
	Path          string `json:"path" yaml:"path"`
	GeometryCount int    `json:"geometryCount" yaml:"geometryCount"`
}
