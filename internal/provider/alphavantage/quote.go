package alphavantage

import (
	"context"

	"github.com/tidwall/gjson"

	"quotefeed/internal/market"
	"quotefeed/internal/proverr"
)

// FetchQuote issues one GLOBAL_QUOTE call. Alpha Vantage has no batch
// endpoint; the orchestrator calls this once per symbol.
func (p *Provider) FetchQuote(ctx context.Context, sym string) (market.Quote, error) {
	body, err := p.call(ctx, fmtQuery("GLOBAL_QUOTE", sym, nil))
	if err != nil {
		return market.Quote{}, err
	}
	g := gjson.GetBytes(body, `Global Quote`)
	price := g.Get(`05\. price`).Float()
	if !g.Exists() || price == 0 {
		return market.Quote{}, proverr.Newf(market.AlphaVantage, proverr.KindPayload, "no quote data for %s", sym)
	}
	q := market.Quote{
		Symbol:        sym,
		Price:         price,
		PreviousClose: g.Get(`08\. previous close`).Float(),
		DayHigh:       g.Get(`03\. high`).Float(),
		DayLow:        g.Get(`04\. low`).Float(),
		Volume:        g.Get(`06\. volume`).Float(),
		Name:          sym,
		Currency:      "USD",
		Source:        market.AlphaVantage,
	}
	// Change and ChangePercent arrive as their own fields ("09. change",
	// "10. change percent") but deriving them keeps the arithmetic
	// invariant exact after any later currency rescale.
	q.Recompute()
	return q, nil
}
