// Package tokencount estimates prompt token counts for telemetry.
//
// Counts are advisory only (logging and /stats); billing-grade usage comes
// from the providers. The tokenizer is loaded lazily and failures degrade to
// a characters/4 heuristic so telemetry never blocks a request.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"

	"github.com/lumenchat/request-gateway/internal/config"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		// cl100k_base covers the GPT-4-era models; close enough for the
		// other providers' tokenizers at telemetry precision.
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// Estimate returns the approximate token count of text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return len(text) / config.TokenEstimateRatio
}

// EstimateMessages sums the message contents of a chat request body.
func EstimateMessages(body []byte) int {
	var b strings.Builder
	for _, msg := range gjson.GetBytes(body, "messages").Array() {
		b.WriteString(msg.Get("content").String())
		b.WriteByte('\n')
	}
	return Estimate(b.String())
}
