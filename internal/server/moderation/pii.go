package moderation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PIIType classifies the kind of personal data found.
type PIIType string

const (
	PIIEmail   PIIType = "EMAIL_ADDRESS"
	PIIPhone   PIIType = "PHONE_NUMBER"
	PIIAddress PIIType = "ADDRESS"
	PIIPostal  PIIType = "POSTAL_CODE"
	PIIUnit    PIIType = "UNIT_NUMBER"
	PIIArea    PIIType = "AREA_NAME"
	PIINRIC    PIIType = "NRIC_FIN"
)

// DefaultThreshold is the confidence a detection needs to be reported.
const DefaultThreshold = 0.7

// contextWindow is how many bytes around a match are inspected for
// allow/deny words.
const contextWindow = 30

// maxPriceAmount is the largest number still treated as a price.
const maxPriceAmount = 200

// Detection is one accepted PII span. Start and End are byte offsets into
// the analysed text.
type Detection struct {
	Type       PIIType `json:"type"`
	Match      string  `json:"match"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// PIIResult summarises a detector run.
type PIIResult struct {
	Filtered   bool
	Content    string
	Detected   []string
	Confidence float64
	Detections []Detection
}

type piiPattern struct {
	re         *regexp.Regexp
	piiType    PIIType
	confidence float64
	// accept, when set, vetoes matches the expression alone cannot rule out.
	accept func(match string) bool
}

type contextRule struct {
	allow map[string]struct{}
	deny  map[string]struct{}
}

// PIIDetector finds structured personal data with a cascade of regular
// expressions. It holds only compiled, read-only state and is safe for
// concurrent use.
type PIIDetector struct {
	patterns []piiPattern
	rules    map[PIIType]contextRule
	prices   []*regexp.Regexp
	words    *regexp.Regexp
}

var genericDeny = []string{
	"cost", "costs", "price", "prices", "priced", "room", "rooms", "chapter", "chapters",
	"score", "scored", "scores", "page", "pages", "grade", "marks", "points", "order",
	"invoice", "ref", "reference", "code", "otp", "pin", "item", "qty", "quantity",
	"version", "model", "serial", "ticket", "booking", "tracking", "level", "question",
	"lesson", "exercise", "sqft", "km", "kg",
}

func NewPIIDetector() *PIIDetector {
	specs := []struct {
		expr       string
		piiType    PIIType
		confidence float64
		accept     func(string) bool
	}{
		{`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, PIIEmail, 0.95, nil},
		{`(?i)[a-z0-9._%+\-]+\s*(?:@|[\(\[\{]\s*at\s*[\)\]\}])\s*[a-z0-9\-]+(?:(?:\.|\s*[\(\[\{]\s*dot\s*[\)\]\}]\s*|\s+dot\s+)[a-z0-9\-]+)*(?:\.|\s*[\(\[\{]\s*dot\s*[\)\]\}]\s*|\s+dot\s+)[a-z]{2,}\b`, PIIEmail, 0.9, obfuscatedEmail},
		{`\+\d{1,3}[\s\-]?\d{3,4}[\s\-]?\d{4}\b`, PIIPhone, 0.9, nil},
		{`\b[689]\d{7}\b`, PIIPhone, 0.85, nil},
		{`\b[3689]\d{3}[\s\-]\d{4}\b`, PIIPhone, 0.8, nil},
		{`(?i)\b(?:blk|block)\s*\d{1,4}[a-z]?\b(?:\s+[a-z]+){0,3}?\s+(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|crescent|cres|central|north|south|east|west)\b|\b(?:blk|block)\s*\d{1,4}[a-z]?\b`, PIIAddress, 0.95, nil},
		{`(?i)\b\d{1,5}[a-z]?(?:\s+[a-z][a-z'\-]*){1,3}\s+(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|crescent|cres)\b`, PIIAddress, 0.9, streetName},
		{`#\s?\d{1,3}\s?-\s?\d{1,5}[A-Za-z]?\b`, PIIUnit, 0.85, nil},
		{`(?i)\b[STFGM]\d{7}[A-Z]\b`, PIINRIC, 0.9, nil},
		{`\b\d{6}\b`, PIIPostal, 0.8, nil},
		{`(?i)\b(?:ang mo kio|bedok|bishan|boon lay|bukit batok|bukit merah|bukit panjang|bukit timah|choa chu kang|clementi|geylang|hougang|jurong east|jurong west|kallang|marine parade|novena|orchard|pasir ris|punggol|queenstown|sembawang|sengkang|serangoon|tampines|tanjong pagar|toa payoh|woodlands|yishun)\b`, PIIArea, 0.6, nil},
	}

	d := &PIIDetector{
		words: regexp.MustCompile(`[a-z]+`),
		prices: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:s\$|us\$|\$|\bsgd|\busd)\s?(\d{1,6}(?:\.\d{1,2})?)`),
			regexp.MustCompile(`(?i)\b(\d{1,6}(?:\.\d{1,2})?)\s?(?:dollars?|bucks|sgd|usd|per\s+(?:hour|hr|session|lesson|month|night)|/\s?(?:hr|hour|h|session|month|mth))\b`),
		},
	}
	for _, s := range specs {
		d.patterns = append(d.patterns, piiPattern{re: regexp.MustCompile(s.expr), piiType: s.piiType, confidence: s.confidence, accept: s.accept})
	}

	d.rules = map[PIIType]contextRule{
		PIIPhone: newContextRule(
			[]string{"call", "contact", "whatsapp", "wa", "text", "phone", "number", "hp", "mobile", "tel", "sms", "reach", "ring", "msg", "message"},
			nil),
		// room and chapter stay denied: six digit room or chapter numbers are common.
		PIIPostal: newContextRule(
			[]string{"singapore", "sg", "postal", "postcode", "address", "blk", "block", "road", "street", "avenue", "live", "located"},
			nil),
		PIIUnit: newContextRule(
			[]string{"unit", "blk", "block", "floor", "level", "apt", "apartment", "condo"},
			[]string{"level"}),
		PIIAddress: newContextRule(
			[]string{"meet", "live", "address", "stay", "come", "house", "home", "condo", "flat", "blk"},
			nil),
		PIINRIC: newContextRule(
			[]string{"nric", "ic", "fin", "identity", "id", "passport"},
			[]string{"code", "ref", "reference"}),
		PIIArea: newContextRule(
			[]string{"live", "stay", "near", "meet", "around", "area"},
			nil),
	}

	return d
}

// streetFiller lists words that never form part of a street name. A number
// followed by one of them is a quantity ("20 minutes on the road").
var streetFiller = map[string]struct{}{
	"on": {}, "the": {}, "my": {}, "in": {}, "at": {}, "to": {}, "down": {}, "along": {},
	"a": {}, "an": {}, "of": {}, "by": {}, "from": {}, "off": {}, "up": {}, "across": {},
	"this": {}, "that": {}, "your": {}, "our": {}, "his": {}, "her": {}, "their": {},
	"min": {}, "mins": {}, "minute": {}, "minutes": {}, "hr": {}, "hrs": {}, "hour": {}, "hours": {},
	"sec": {}, "secs": {}, "second": {}, "seconds": {}, "day": {}, "days": {}, "week": {}, "weeks": {},
	"month": {}, "months": {}, "year": {}, "years": {}, "time": {}, "times": {},
	"km": {}, "m": {}, "metres": {}, "meters": {}, "miles": {}, "cars": {}, "people": {},
}

// streetName rejects street matches whose name words include filler.
func streetName(match string) bool {
	fields := strings.Fields(strings.ToLower(match))
	if len(fields) < 3 {
		return false
	}
	for _, w := range fields[1 : len(fields)-1] {
		if _, ok := streetFiller[w]; ok {
			return false
		}
	}
	return true
}

// obfuscatedEmail keeps only matches that spell "at" or "dot" out; plain
// addresses are left to the stricter email expression.
func obfuscatedEmail(match string) bool {
	lower := strings.ToLower(match)
	return strings.ContainsAny(lower, "([{") || strings.Contains(lower, " dot ")
}

// newContextRule builds a category rule: the generic deny set minus subtract,
// plus the category's own allow words.
func newContextRule(allow, subtract []string) contextRule {
	r := contextRule{allow: make(map[string]struct{}, len(allow)), deny: make(map[string]struct{}, len(genericDeny))}
	for _, w := range allow {
		r.allow[w] = struct{}{}
	}
	for _, w := range genericDeny {
		r.deny[w] = struct{}{}
	}
	for _, w := range subtract {
		delete(r.deny, w)
	}
	return r
}

type span struct{ start, end int }

func (d *PIIDetector) priceSpans(text string) []span {
	var spans []span
	for _, re := range d.prices {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			amount, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
			if err != nil || amount > maxPriceAmount {
				continue
			}
			spans = append(spans, span{m[0], m[1]})
		}
	}
	return spans
}

// touches reports whether [start,end) overlaps or sits directly next to s,
// allowing one separator byte.
func (s span) touches(start, end int) bool {
	return start <= s.end+1 && s.start <= end+1
}

func (d *PIIDetector) deniedByContext(text string, det Detection) bool {
	rule, ok := d.rules[det.Type]
	if !ok {
		return false
	}
	lo := max(0, det.Start-contextWindow)
	hi := min(len(text), det.End+contextWindow)
	words := d.words.FindAllString(strings.ToLower(text[lo:hi]), -1)

	denied := false
	for _, w := range words {
		if _, ok := rule.allow[w]; ok {
			return false
		}
		if _, ok := rule.deny[w]; ok {
			denied = true
		}
	}
	return denied
}

// Detect returns the accepted detections with confidence >= threshold,
// ordered by start offset. No two returned detections overlap.
func (d *PIIDetector) Detect(text string, threshold float64) []Detection {
	if text == "" {
		return nil
	}
	prices := d.priceSpans(text)

	var candidates []Detection
	for _, p := range d.patterns {
		if p.confidence < threshold {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			det := Detection{
				Type:       p.piiType,
				Match:      text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: p.confidence,
			}
			if p.accept != nil && !p.accept(det.Match) {
				continue
			}
			if (det.Type == PIIPhone || det.Type == PIIPostal) && touchesAny(prices, det) {
				continue
			}
			if d.deniedByContext(text, det) {
				continue
			}
			candidates = append(candidates, det)
		}
	}

	return resolveOverlaps(candidates)
}

func touchesAny(spans []span, det Detection) bool {
	for _, s := range spans {
		if s.touches(det.Start, det.End) {
			return true
		}
	}
	return false
}

// resolveOverlaps keeps the strongest detection for every contested span:
// candidates are ranked by confidence, then earliest start, then longest
// match, and accepted greedily when they overlap nothing already accepted.
func resolveOverlaps(candidates []Detection) []Detection {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End-a.Start > b.End-b.Start
	})

	var accepted []Detection
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.Start < a.End && a.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// Redact replaces every detection span with "[TYPE]". Spans are rewritten
// from the last to the first so earlier offsets stay valid.
func Redact(text string, detections []Detection) string {
	ordered := make([]Detection, len(detections))
	copy(ordered, detections)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	for _, det := range ordered {
		if det.Start < 0 || det.End > len(out) || det.Start > det.End {
			continue
		}
		out = out[:det.Start] + "[" + string(det.Type) + "]" + out[det.End:]
	}
	return out
}

// Analyze runs Detect and builds the redacted view.
func (d *PIIDetector) Analyze(text string, threshold float64) PIIResult {
	detections := d.Detect(text, threshold)
	if len(detections) == 0 {
		return PIIResult{Content: text}
	}

	var (
		types []string
		seen  = make(map[PIIType]struct{})
		total float64
	)
	for _, det := range detections {
		total += det.Confidence
		if _, ok := seen[det.Type]; !ok {
			seen[det.Type] = struct{}{}
			types = append(types, string(det.Type))
		}
	}

	return PIIResult{
		Filtered:   true,
		Content:    Redact(text, detections),
		Detected:   types,
		Confidence: total / float64(len(detections)),
		Detections: detections,
	}
}
