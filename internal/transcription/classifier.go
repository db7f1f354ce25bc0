package transcription

import "strings"

var defaultSalesKeywords = []string{
	"quote",
	"estimate",
	"how much",
	"price",
	"cost",
	"appointment",
	"schedule",
	"bring it in",
	"drop it off",
	"drop off",
	"diagnostic",
	"check engine",
	"brake",
	"oil change",
	"alignment",
	"tires",
	"transmission",
	"repair",
	"inspection",
}

var defaultNonSalesKeywords = []string{
	"invoice",
	"order number",
	"part number",
	"supplier",
	"vendor",
	"delivery",
	"courtesy call",
	"extended warranty",
	"press one",
	"press 1",
	"unsubscribe",
	"wrong number",
	"voicemail",
}

// Classifier scores a transcript against sales and non-sales phrase lists.
type Classifier struct {
	sales    []string
	nonSales []string
	minHits  int
}

// NewClassifier uses salesKeywords in place of the built-in sales vocabulary when non-empty.
func NewClassifier(salesKeywords []string) *Classifier {
	sales := defaultSalesKeywords
	if len(salesKeywords) > 0 {
		sales = salesKeywords
	}
	return &Classifier{sales: sales, nonSales: defaultNonSalesKeywords, minHits: 2}
}

// IsSalesCall reports whether text reads like a customer asking for work:
// at least two sales hits and more sales than non-sales hits.
func (c *Classifier) IsSalesCall(text string) bool {
	t := strings.ToLower(text)
	if strings.TrimSpace(t) == "" {
		return false
	}
	sales := countHits(t, c.sales)
	other := countHits(t, c.nonSales)
	return sales >= c.minHits && sales > other
}

func countHits(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if p == "" {
			continue
		}
		n += strings.Count(text, strings.ToLower(p))
	}
	return n
}
