package textutils

import (
	"regexp"
	"strings"

	"banklytik/statement-normalizer/internal/models"
)

// channelKeywords is checked in order; the first match wins.
var channelKeywords = []struct {
	channel  models.Channel
	keywords []string
}{
	{models.ChannelReversal, []string{"reversal", "reversed", "refund"}},
	{models.ChannelCharges, []string{"charge", "fee", "vat", "stamp duty", "sms alert", "levy", "commission", "maintenance"}},
	{models.ChannelAirtime, []string{"airtime", "recharge", "data bundle", "mtn", "glo", "airtel", "9mobile"}},
	{models.ChannelBills, []string{"bill", "kedco", "ikedc", "ekedc", "dstv", "gotv", "electricity", "lawma"}},
	{models.ChannelATM, []string{"atm", "cash withdrawal"}},
	{models.ChannelPOS, []string{"pos", "web purchase", "card purchase", "purchase", "paystack", "flutterwave"}},
	{models.ChannelTransfer, []string{"transfer", "trf", "nip", "inward", "outward", "fip", "neft"}},
}

// ExtractChannel infers the transaction channel from description keywords.
// An empty description yields EMPTY; unmatched text yields OTHER.
func ExtractChannel(description string) models.Channel {
	text := " " + strings.Join(Tokens(description), " ") + " "
	if strings.TrimSpace(text) == "" {
		return models.ChannelEmpty
	}
	for _, entry := range channelKeywords {
		for _, kw := range entry.keywords {
			// short keywords must stand alone to avoid "pos" matching "deposit"
			if len(kw) <= 4 {
				if strings.Contains(text, " "+kw+" ") {
					return entry.channel
				}
				continue
			}
			if strings.Contains(text, kw) {
				return entry.channel
			}
		}
	}
	return models.ChannelOther
}

// NormalizeChannel maps a free-text channel cell onto a known channel, falling back
// to keyword extraction.
func NormalizeChannel(cell string) models.Channel {
	upper := strings.ToUpper(CollapseSpaces(cell))
	switch models.Channel(upper) {
	case models.ChannelATM, models.ChannelPOS, models.ChannelTransfer, models.ChannelAirtime,
		models.ChannelCharges, models.ChannelReversal, models.ChannelBills, models.ChannelOther:
		return models.Channel(upper)
	}
	return ExtractChannel(cell)
}

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:ref(?:erence)?|session(?:\s*id)?|txn\s*id)\s*[:#.]?\s*([A-Z0-9/-]{6,})`),
	regexp.MustCompile(`\b(\d{20,30})\b`),
}

// ExtractReference finds a transaction reference or NIP session ID embedded in a description.
func ExtractReference(description string) string {
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(description); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
