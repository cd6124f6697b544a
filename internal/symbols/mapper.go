// Package symbols translates between platform symbol identity and IG epics.
package symbols

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AssetClass categorizes instruments the way the dealing API does.
type AssetClass string

const (
	ClassForex     AssetClass = "CURRENCIES"
	ClassCrypto    AssetClass = "CRYPTOCURRENCIES"
	ClassIndex     AssetClass = "INDICES"
	ClassCommodity AssetClass = "COMMODITIES"
	ClassShares    AssetClass = "SHARES"
	ClassUnknown   AssetClass = "UNKNOWN"
)

// Symbol is the platform-side identity of an instrument.
type Symbol struct {
	Ticker string
	Class  AssetClass
}

type reverseEntry struct {
	ticker string
	class  AssetClass
}

// Mapper keeps bidirectional ticker/epic tables. Both directions are
// updated together by AddMapping so round-trips stay consistent.
type Mapper struct {
	mu     sync.RWMutex
	toEpic map[string]string
	toSym  map[string]reverseEntry
}

// NewMapper builds a mapper seeded with the built-in table.
func NewMapper() *Mapper {
	m := &Mapper{
		toEpic: make(map[string]string),
		toSym:  make(map[string]reverseEntry),
	}
	for _, d := range defaultMappings {
		m.AddMapping(d.ticker, d.epic, d.class)
	}
	return m
}

var defaultMappings = []struct {
	ticker string
	epic   string
	class  AssetClass
}{
	{"EURUSD", "CS.D.EURUSD.CFD.IP", ClassForex},
	{"GBPUSD", "CS.D.GBPUSD.CFD.IP", ClassForex},
	{"USDJPY", "CS.D.USDJPY.CFD.IP", ClassForex},
	{"AUDUSD", "CS.D.AUDUSD.CFD.IP", ClassForex},
	{"BTCUSD", "CS.D.BITCOIN.CFD.IP", ClassCrypto},
	{"ETHUSD", "CS.D.ETHUSD.CFD.IP", ClassCrypto},
	{"FTSE100", "IX.D.FTSE.CFD.IP", ClassIndex},
	{"SPX500", "IX.D.SPTRD.CFD.IP", ClassIndex},
	{"XAUUSD", "CS.D.CFDGOLD.CFDGC.IP", ClassCommodity},
}

// AddMapping inserts or overwrites both the forward and reverse entries.
func (m *Mapper) AddMapping(ticker, epic string, class AssetClass) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop a stale reverse entry when re-pointing an existing ticker.
	if old, ok := m.toEpic[ticker]; ok && old != epic {
		delete(m.toSym, old)
	}
	m.toEpic[ticker] = epic
	m.toSym[epic] = reverseEntry{ticker: ticker, class: class}
}

// ToEpic resolves a platform symbol to an instrument epic.
// Forex and crypto tickers fall back to the deterministic CFD epic form;
// other classes without an explicit mapping resolve to "".
func (m *Mapper) ToEpic(sym Symbol) string {
	m.mu.RLock()
	epic, ok := m.toEpic[sym.Ticker]
	m.mu.RUnlock()
	if ok {
		return epic
	}

	switch sym.Class {
	case ClassForex, ClassCrypto:
		return fmt.Sprintf("CS.D.%s.CFD.IP", strings.ToUpper(sym.Ticker))
	default:
		return ""
	}
}

// ToSymbol resolves an epic back to a platform symbol. Unknown epics are
// decomposed structurally; as a last resort the raw code becomes the ticker.
func (m *Mapper) ToSymbol(epic string, hint AssetClass) Symbol {
	m.mu.RLock()
	entry, ok := m.toSym[epic]
	m.mu.RUnlock()
	if ok {
		return Symbol{Ticker: entry.ticker, Class: entry.class}
	}

	if ticker, class, ok := decomposeEpic(epic); ok {
		if class == ClassUnknown && hint != "" {
			class = hint
		}
		return Symbol{Ticker: ticker, Class: class}
	}

	class := hint
	if class == "" {
		class = ClassUnknown
	}
	return Symbol{Ticker: epic, Class: class}
}

// decomposeEpic extracts a ticker from the structured epic format
// PREFIX.D.TICKER.SUFFIX.IP.
func decomposeEpic(epic string) (string, AssetClass, bool) {
	parts := strings.Split(epic, ".")
	if len(parts) < 5 || parts[1] != "D" {
		return "", ClassUnknown, false
	}
	ticker := parts[2]

	switch parts[0] {
	case "CS":
		if len(ticker) == 6 && isAlpha(ticker) {
			return ticker, ClassForex, true
		}
		return ticker, ClassCrypto, true
	case "IX":
		return ticker, ClassIndex, true
	case "CC", "EN":
		return ticker, ClassCommodity, true
	case "UA", "UB", "KA", "SH":
		return ticker, ClassShares, true
	default:
		return ticker, ClassUnknown, true
	}
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// mapFile is the YAML shape of an external mapping file.
type mapFile struct {
	Mappings []struct {
		Ticker string `yaml:"ticker"`
		Epic   string `yaml:"epic"`
		Class  string `yaml:"class"`
	} `yaml:"mappings"`
}

// LoadFile extends the tables from a YAML mapping file. Entries overwrite
// any built-in mapping for the same ticker.
func (m *Mapper) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file mapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("symbols: parse mapping file: %w", err)
	}

	for _, e := range file.Mappings {
		if e.Ticker == "" || e.Epic == "" {
			continue
		}
		m.AddMapping(e.Ticker, e.Epic, parseClass(e.Class))
	}
	return nil
}

func parseClass(s string) AssetClass {
	switch strings.ToUpper(s) {
	case "CURRENCIES", "FOREX", "FX":
		return ClassForex
	case "CRYPTOCURRENCIES", "CRYPTO":
		return ClassCrypto
	case "INDICES", "INDEX":
		return ClassIndex
	case "COMMODITIES", "COMMODITY":
		return ClassCommodity
	case "SHARES", "EQUITY", "STOCKS":
		return ClassShares
	default:
		return ClassUnknown
	}
}

// SpreadPriced reports whether a class is priced by spread (no commission).
func SpreadPriced(class AssetClass) bool {
	switch class {
	case ClassForex, ClassCrypto, ClassIndex, ClassCommodity:
		return true
	default:
		return false
	}
}
