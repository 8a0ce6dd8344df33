// Package translate turns free-form English scenario text into structured
// order requests. The rule path is pure and deterministic; the agent wrapper
// can prefer a language model when one is reachable.
package translate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/tradelab/internal/order"
)

// knownSymbols maps tickers and common company aliases to the symbol the
// venue trades.
var knownSymbols = map[string]string{
	"aapl": "AAPL", "apple": "AAPL",
	"goog": "GOOG", "google": "GOOG",
	"msft": "MSFT", "microsoft": "MSFT",
	"tsla": "TSLA", "tesla": "TSLA",
	"amzn": "AMZN", "amazon": "AMZN",
}

const (
	unknownSymbol   = "UNKNOWN"
	defaultQuantity = 100
	maxQuantity     = 9_999_999
)

var defaultPrice = decimal.NewFromInt(100)

var (
	wordRe    = regexp.MustCompile(`[a-z]+`)
	integerRe = regexp.MustCompile(`\d+`)
	priceRe   = regexp.MustCompile(`(?:\b(?:at|price)\b|@)\s*\$?(\d+(?:\.\d+)?)`)
)

// Translate applies the keyword rules to text and builds the resulting
// request. Identical input always yields an identical request; the function
// performs no I/O.
func Translate(text string) (order.Request, error) {
	lower := strings.ToLower(text)
	words := wordRe.FindAllString(lower, -1)
	has := make(map[string]bool, len(words))
	for _, w := range words {
		has[w] = true
	}

	side := order.SideBuy
	if has["sell"] || has["short"] {
		side = order.SideSell
	}

	typ := order.TypeMarket
	if has["limit"] {
		typ = order.TypeLimit
	}
	if has["stop"] {
		typ = order.TypeStop
	}

	tif := order.TIFDay
	if has["close"] || has["moc"] {
		tif = order.TIFAtClose
	}
	if has["gtc"] {
		tif = order.TIFGoodTillCancel
	}
	if has["ioc"] || has["immediate"] {
		tif = order.TIFImmediateOrCancel
	}

	symbol := unknownSymbol
	for _, w := range words {
		if s, ok := knownSymbols[w]; ok {
			symbol = s
			break
		}
	}

	qty := int64(defaultQuantity)
	for _, loc := range integerRe.FindAllStringIndex(lower, -1) {
		if partOfDecimal(lower, loc[0], loc[1]) {
			continue
		}
		n, err := strconv.ParseInt(lower[loc[0]:loc[1]], 10, 64)
		if err != nil || n < 1 || n > maxQuantity {
			continue
		}
		qty = n
		break
	}

	price := defaultPrice
	if m := priceRe.FindStringSubmatch(lower); m != nil {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			price = d
		}
	}

	b := order.New(symbol).Side(side).Type(typ).Quantity(qty).TimeInForce(tif)
	if typ != order.TypeMarket {
		b = b.Price(price)
	}
	switch {
	case strings.Contains(lower, "reject"),
		strings.Contains(lower, "fat-finger"),
		strings.Contains(lower, "fat finger"):
		b = b.Expect(order.ExecRejected)
	case strings.Contains(lower, "fill"):
		b = b.Expect(order.ExecFill)
	}
	return b.Build()
}

// partOfDecimal reports whether the digit run at [start,end) belongs to a
// decimal number like 185.50, whose parts must not be read as quantities.
func partOfDecimal(s string, start, end int) bool {
	if start > 0 && s[start-1] == '.' {
		return true
	}
	if end+1 < len(s) && s[end] == '.' && s[end+1] >= '0' && s[end+1] <= '9' {
		return true
	}
	return false
}
