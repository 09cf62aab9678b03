// Package tokens estimates token counts for context-budget enforcement.
//
// Counting uses the cl100k_base BPE encoding via tiktoken-go. Loading the
// encoding can fail in offline environments (tiktoken downloads its vocabulary
// on first use), so Counter falls back to the common 4-characters-per-token
// heuristic when the encoding is unavailable.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Counter measures text length in tokens.
//
// Counter is safe for concurrent use.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter creates a Counter. The underlying encoding is loaded lazily on
// the first Count call.
func NewCounter() *Counter {
	return &Counter{}
}

// Count returns the number of tokens in text. When the BPE encoding cannot
// be loaded, it returns the heuristic estimate len(text)/4, rounded up.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			c.enc = enc
		}
	})

	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// estimate approximates tokens as 4 characters each, rounding up so short
// strings never count as zero tokens.
func estimate(text string) int {
	return (len(text) + 3) / 4
}
