// Package notify formats launch notifications and delivers them to sinks.
package notify

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"moonshot-watcher/internal/domain"
)

// DexScreenerBase is the token page prefix used for links.
const DexScreenerBase = "https://dexscreener.com/solana/"

// TokensPerField is how many prior launches are listed in one embed field.
const TokensPerField = 10

// NoPriorTokensNote is shown when the creator has no other launches.
const NoPriorTokensNote = "There is no previously launched tokens"

// DevBuyDivisor converts the developer's initial buy amount into the displayed
// holdings percentage: amount / 1e18, rendered with two decimals.
var DevBuyDivisor = decimal.New(1, 18)

// Launch is an enriched Create event ready to be delivered.
type Launch struct {
	Signature string
	Slot      uint64
	Event     *domain.CreateEvent
	Metadata  *domain.TokenMetadata      // off-chain document; falls back to the event's name and symbol
	History   []*domain.OnChainMetadata // creator's qualifying mints, current mint included
}

// WebhookMessage is the chat webhook request body.
type WebhookMessage struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds"`
}

// Embed is a rich message card.
type Embed struct {
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Fields    []EmbedField   `json:"fields"`
	Thumbnail EmbedThumbnail `json:"thumbnail"`
}

// EmbedField is one block of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedThumbnail is the embed image.
type EmbedThumbnail struct {
	URL string `json:"url"`
}

// DexScreenerURL returns the token page of mint.
func DexScreenerURL(mint string) string {
	return DexScreenerBase + mint
}

// DevHoldings renders the developer initial buy as a two-decimal percentage string.
// Returns "0.00" when there was no initial buy.
func DevHoldings(buy *domain.BuyEvent) string {
	if buy == nil {
		return decimal.Zero.StringFixed(2)
	}
	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(buy.Amount), 0)
	return amount.Div(DevBuyDivisor).StringFixed(2)
}

// PriorTokens returns the history entries every sink lists: nil entries,
// zero mints and the current mint are skipped.
func PriorTokens(current string, history []*domain.OnChainMetadata) []*domain.OnChainMetadata {
	prior := make([]*domain.OnChainMetadata, 0, len(history))
	for _, md := range history {
		if md == nil || md.Mint.IsZero() || md.Mint.String() == current {
			continue
		}
		prior = append(prior, md)
	}
	return prior
}

// PriorTokenLines renders one markdown bullet per prior launch, excluding the current mint.
func PriorTokenLines(current string, history []*domain.OnChainMetadata) []string {
	prior := PriorTokens(current, history)
	lines := make([]string, 0, len(prior))
	for _, md := range prior {
		lines = append(lines, fmt.Sprintf("- [ %s $(%s)](%s) \n", md.Name, md.Symbol, DexScreenerURL(md.Mint.String())))
	}
	return lines
}

// BuildMessage formats a launch as a webhook message.
func BuildMessage(l *Launch) *WebhookMessage {
	ev := l.Event
	mint := ev.Mint.String()

	md := l.Metadata
	if md == nil {
		md = &domain.TokenMetadata{Name: ev.Name, Symbol: ev.Symbol}
	}

	lines := PriorTokenLines(mint, l.History)
	note := ""
	if len(lines) == 0 {
		note = NoPriorTokensNote
	}

	fields := []EmbedField{{
		Value: fmt.Sprintf(
			"**Contract Address**\n`%s`\n\n**Description**\n%s\n\n**Dev Information:**\n* Dev Holdings: `%s%%`\n\n**Creator Launched Tokens** \n%s",
			mint, md.Description, DevHoldings(ev.BuyEvent), note,
		),
		Inline: true,
	}}

	for start := 0; start < len(lines); start += TokensPerField {
		end := min(start+TokensPerField, len(lines))
		fields = append(fields, EmbedField{Value: strings.Join(lines[start:end], "")})
	}

	// closing spacer
	fields = append(fields, EmbedField{Inline: true})

	return &WebhookMessage{
		Embeds: []Embed{{
			Title:     fmt.Sprintf("%s $(%s) ", ev.Name, ev.Symbol),
			URL:       DexScreenerURL(mint),
			Fields:    fields,
			Thumbnail: EmbedThumbnail{URL: md.Image},
		}},
	}
}
