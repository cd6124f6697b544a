package orders

import (
	"math"
	"strconv"
	"strings"
)

// Protection is stop-loss / take-profit intent parsed from an order tag.
// Prices are platform prices.
type Protection struct {
	StopPrice  float64
	LimitPrice float64
	HasStop    bool
	HasLimit   bool
}

// ParseProtectionTag extracts SL/TP instructions from a free-form tag of
// the form "SL:1.0800;TP:1.0950". Unknown segments and unparsable values
// are ignored; an empty tag yields no protection.
func ParseProtectionTag(tag string) Protection {
	var p Protection
	for _, seg := range strings.Split(tag, ";") {
		seg = strings.TrimSpace(seg)
		key, val, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || price <= 0 {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "SL":
			p.StopPrice = price
			p.HasStop = true
		case "TP":
			p.LimitPrice = price
			p.HasLimit = true
		}
	}
	return p
}

// Distances converts protection prices into absolute distances from the
// entry price. The broker takes distances, not levels, so the direction
// of the offset does not matter.
func (p Protection) Distances(entry float64) (stopDist, limitDist float64) {
	if p.HasStop {
		stopDist = math.Abs(entry - p.StopPrice)
	}
	if p.HasLimit {
		limitDist = math.Abs(entry - p.LimitPrice)
	}
	return stopDist, limitDist
}
