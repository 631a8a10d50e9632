package ai

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a tiktoken encoding.
// The encoding is loaded on first use; if loading fails every count is 0.
type TiktokenCounter struct {
	encoding string
	load     func(encoding string) (*tiktoken.Tiktoken, error)
	once     sync.Once
	enc      *tiktoken.Tiktoken
	logger   *slog.Logger
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// NewTokenCounter creates a counter for the named encoding.
func NewTokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{
		encoding: encoding,
		load:     tiktoken.GetEncoding,
		logger:   slog.Default().With("component", "token-counter"),
	}
}

// CountTokens returns the number of tokens in text.
func (c *TiktokenCounter) CountTokens(text string) int {
	c.once.Do(func() {
		enc, err := c.load(c.encoding)
		if err != nil {
			c.logger.Warn("token encoding unavailable, counts disabled", "encoding", c.encoding, "err", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil || text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
