// Package phoneme maps phoneme symbols to the small integer codes stored in a
// corpus. The mapping must be identical at write time and read time, so the
// default table is immutable and built once per process.
package phoneme

import (
	"fmt"
	"sync"
)

// Unknown is the code stored for symbols outside the table, including the
// empty label of silence intervals.
const Unknown = -1

// defaultSymbols is the reference table; a symbol's code is its index.
var defaultSymbols = [...]string{
	"a", "aj", "aw", "aː", "b", "bʲ", "c", "cʰ", "cʷ",
	"d", "dʒ", "dʲ", "d̪", "e", "ej", "eː", "f", "fʲ", "h",
	"i", "iː", "j", "k", "kp", "kʰ", "kʷ", "l", "m", "mʲ",
	"m̩", "n", "o", "ow", "oː", "p", "pʰ", "pʲ", "pʷ", "s",
	"t", "tʃ", "tʰ", "tʲ", "tʷ", "t̪", "u", "uː", "v", "vʲ",
	"w", "z", "æ", "ç", "ð", "ŋ", "ɐ", "ɑ", "ɑː", "ɒ",
	"ɒː", "ɔ", "ɔj", "ɖ", "ə", "əw", "ɚ", "ɛ", "ɛː", "ɜ",
	"ɜː", "ɝ", "ɟ", "ɟʷ", "ɡ", "ɡʷ", "ɪ", "ɫ", "ɲ", "ɹ",
	"ɾ", "ʃ", "ʈ", "ʈʲ", "ʈʷ", "ʉ", "ʉː", "ʊ", "ʋ", "ʎ",
	"ʒ", "θ",
}

// Codec is a bidirectional symbol/code table. A Codec is never mutated after
// construction and is safe for concurrent use.
type Codec struct {
	codes   map[string]int
	symbols []string
}

// NewCodec builds a codec where each symbol's code is its position in symbols.
func NewCodec(symbols []string) (*Codec, error) {
	c := &Codec{
		codes:   make(map[string]int, len(symbols)),
		symbols: make([]string, len(symbols)),
	}
	for i, s := range symbols {
		if s == "" {
			return nil, fmt.Errorf("phoneme: empty symbol at code %d", i)
		}
		if prev, ok := c.codes[s]; ok {
			return nil, fmt.Errorf("phoneme: symbol %q at code %d duplicates code %d", s, i, prev)
		}
		c.codes[s] = i
		c.symbols[i] = s
	}
	return c, nil
}

var defaultCodec = sync.OnceValue(func() *Codec {
	c, err := NewCodec(defaultSymbols[:])
	if err != nil {
		panic(err)
	}
	return c
})

// Default returns the process-wide reference codec (91 symbols, codes 0..90).
func Default() *Codec { return defaultCodec() }

// Encode returns the code for symbol, or [Unknown].
func (c *Codec) Encode(symbol string) int {
	if code, ok := c.codes[symbol]; ok {
		return code
	}
	return Unknown
}

// Decode returns the symbol for code. Unknown and out-of-range codes never decode.
func (c *Codec) Decode(code int) (string, bool) {
	if code < 0 || code >= len(c.symbols) {
		return "", false
	}
	return c.symbols[code], true
}

// Len is the number of known symbols.
func (c *Codec) Len() int { return len(c.symbols) }

// Symbols returns a copy of the table in code order.
func (c *Codec) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}
