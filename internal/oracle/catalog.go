package oracle

import (
	"context"
	"strings"

	"github.com/kubesec-bank/invest-ledger/internal/models"
)

// DefaultCatalog lists the assets offered for discovery.
var DefaultCatalog = []Asset{
	{Ticker: "PETR4.SA", Name: "Petrobras PN", Category: models.CategoryEquity},
	{Ticker: "VALE3.SA", Name: "Vale ON", Category: models.CategoryEquity},
	{Ticker: "ITUB4.SA", Name: "Itaú Unibanco PN", Category: models.CategoryEquity},
	{Ticker: "BBDC4.SA", Name: "Bradesco PN", Category: models.CategoryEquity},
	{Ticker: "WEGE3.SA", Name: "WEG ON", Category: models.CategoryEquity},
	{Ticker: "MXRF11.SA", Name: "Maxi Renda FII", Category: models.CategoryRealEstateFund},
	{Ticker: "HGLG11.SA", Name: "CSHG Logística FII", Category: models.CategoryRealEstateFund},
	{Ticker: "BTC-USD", Name: "Bitcoin", Category: models.CategoryCrypto},
	{Ticker: "ETH-USD", Name: "Ethereum", Category: models.CategoryCrypto},
	{Ticker: "USDBRL=X", Name: "Dólar Americano", Category: models.CategoryCurrency},
}

// Catalog answers searches from a fixed asset list.
type Catalog struct {
	assets []Asset
}

var _ Searcher = (*Catalog)(nil)

func NewCatalog(assets []Asset) *Catalog {
	if assets == nil {
		assets = DefaultCatalog
	}
	return &Catalog{assets: assets}
}

// SearchAssets matches query case-insensitively against ticker and name.
// An empty query returns the whole catalog.
func (c *Catalog) SearchAssets(_ context.Context, query string) ([]Asset, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	out := []Asset{}
	for _, a := range c.assets {
		if query == "" ||
			strings.Contains(strings.ToLower(a.Ticker), query) ||
			strings.Contains(strings.ToLower(a.Name), query) {
			out = append(out, a)
		}
	}
	return out, nil
}
