package types

import (
	"time"
)

type AssetType string

const (
	AssetTypeStock AssetType = "STOCK"
	AssetTypeEtf   AssetType = "ETF"
	AssetTypeIndex AssetType = "INDEX"
)

// Asset is a tradable (or benchmark) instrument known to the price store.
type Asset struct {
	Id         int       `json:"id"`
	Ticker     string    `json:"ticker"`
	Name       string    `json:"name"`
	Type       AssetType `json:"type"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
