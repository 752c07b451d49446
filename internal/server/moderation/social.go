package moderation

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Evidence kinds reported by the social-share detector.
const (
	EvidenceURL        = "url"
	EvidenceHandle     = "handle"
	EvidenceDiscordTag = "discord_tag"
	EvidenceHandleLike = "handle_like"
	EvidencePhrase     = "phrase"
)

const (
	blockScore   = 2
	cueWindow    = 120
	socialPrefix = 0.6
	socialStep   = 0.1
)

// Evidence is one signal found in the normalized text. Start and End are
// byte offsets into the normalized string.
type Evidence struct {
	Kind      string `json:"kind"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Value     string `json:"value"`
	Validated bool   `json:"validated"`
}

// SocialResult is the outcome of a social-share scan.
type SocialResult struct {
	Blocked    bool
	Score      int
	Normalized string
	Evidence   []Evidence
}

// Confidence maps the additive score onto [0,1] so it can be compared with
// the moderation threshold.
func (r SocialResult) Confidence() float64 {
	if r.Score <= 0 {
		return 0
	}
	return math.Min(1, socialPrefix+socialStep*float64(r.Score))
}

// SocialDetector scores text for attempts to move a conversation off
// platform. Like PIIDetector it is immutable after construction.
type SocialDetector struct {
	whitelist map[string]struct{}

	zeroWidth   *strings.Replacer
	atObfus     *regexp.Regexp
	dotObfus    *regexp.Regexp
	dotWord     *regexp.Regexp
	spaces      *regexp.Regexp
	atSpacing   *regexp.Regexp
	email       *regexp.Regexp
	url         *regexp.Regexp
	handle      *regexp.Regexp
	cue         *regexp.Regexp
	discordTag  *regexp.Regexp
	token       *regexp.Regexp
	phrase      *regexp.Regexp
	codeSignals []*regexp.Regexp
	phoneLike   *regexp.Regexp
	platformFor map[string]string
	shapes      map[string]*regexp.Regexp
}

// NewSocialDetector builds a detector; handles in whitelist (with or without
// the leading "@") never count as evidence.
func NewSocialDetector(whitelist []string) *SocialDetector {
	wl := make(map[string]struct{}, len(whitelist))
	for _, h := range whitelist {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
		if h != "" {
			wl[h] = struct{}{}
		}
	}

	return &SocialDetector{
		whitelist:  wl,
		zeroWidth:  strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "", "\u00ad", ""),
		atObfus:    regexp.MustCompile(`\s*[\(\[\{]\s*at\s*[\)\]\}]\s*`),
		dotObfus:   regexp.MustCompile(`\s*(?:[\(\[\{]\s*dot\s*[\)\]\}]|[•·])\s*`),
		dotWord:    regexp.MustCompile(`\s+dot\s+`),
		spaces:     regexp.MustCompile(`\s+`),
		atSpacing:  regexp.MustCompile(`\s*@\s*`),
		email:      regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
		url:        regexp.MustCompile(`(?:^|[^a-z0-9.\-])((?:https?://)?(?:www\.)?(?:instagram\.com|instagr\.am|facebook\.com|fb\.com|fb\.me|m\.me|t\.me|telegram\.me|wa\.me|tiktok\.com|twitter\.com|x\.com|discord\.gg|discord\.com|snapchat\.com|linkedin\.com|youtube\.com|youtu\.be|threads\.net)(?:/[^\s]*)?)`),
		handle:     regexp.MustCompile(`@([a-z0-9_][a-z0-9_.]{1,29})`),
		cue:        regexp.MustCompile(`\b(instagram|insta|ig|telegram|tele|tg|discord|snapchat|snap|tiktok|twitter|facebook|fb|whatsapp|wechat|linkedin)\b`),
		discordTag: regexp.MustCompile(`\b[a-z0-9_.]{2,32}#\d{4}\b`),
		token:      regexp.MustCompile(`\b[a-z0-9_.]{3,30}\b`),
		phrase:     regexp.MustCompile(`\b(?:add me on|add me at|dm me|pm me|follow me|hit me up|message me on|msg me on|find me on|reach me on|text me on|contact me on|my (?:ig|insta|instagram|telegram|tele|discord|snap|snapchat|tiktok|handle|socials?)|chat (?:on|via) (?:ig|insta|telegram|whatsapp|discord))\b`),
		codeSignals: []*regexp.Regexp{
			regexp.MustCompile(`[{}]`),
			regexp.MustCompile(`;`),
			regexp.MustCompile(`=>|\(\)`),
			regexp.MustCompile(`\b(?:func|def|return|void|public|const|var)\b`),
			regexp.MustCompile(`</?[a-z]+>`),
			regexp.MustCompile(`\b(?:error|warn|info|debug)\b:`),
			regexp.MustCompile(`\d{2}:\d{2}:\d{2}`),
		},
		phoneLike: regexp.MustCompile(`\+?\d[\d\s\-]{6,}\d`),
		platformFor: map[string]string{
			"instagram": "instagram", "insta": "instagram", "ig": "instagram",
			"telegram": "telegram", "tele": "telegram", "tg": "telegram",
			"discord":  "discord",
			"snapchat": "snapchat", "snap": "snapchat",
			"tiktok":   "tiktok",
			"twitter":  "twitter",
			"facebook": "facebook", "fb": "facebook",
		},
		shapes: map[string]*regexp.Regexp{
			"instagram": regexp.MustCompile(`^[a-z0-9_](?:[a-z0-9_.]{0,28}[a-z0-9_])?$`),
			"telegram":  regexp.MustCompile(`^[a-z][a-z0-9_]{4,31}$`),
			"discord":   regexp.MustCompile(`^[a-z0-9_.]{2,32}$`),
			"snapchat":  regexp.MustCompile(`^[a-z][a-z0-9_.\-]{2,14}$`),
			"tiktok":    regexp.MustCompile(`^[a-z0-9_.]{2,24}$`),
			"twitter":   regexp.MustCompile(`^[a-z0-9_]{1,15}$`),
			"facebook":  regexp.MustCompile(`^[a-z0-9.]{5,50}$`),
		},
	}
}

// Normalize folds obfuscated text into a canonical lower-case form.
func (d *SocialDetector) Normalize(text string) string {
	return d.atSpacing.ReplaceAllString(d.normalizeLoose(text), "@")
}

// normalizeLoose applies every folding step except tightening around "@".
func (d *SocialDetector) normalizeLoose(text string) string {
	s := norm.NFKC.String(text)
	s = cases.Fold().String(s)
	s = d.zeroWidth.Replace(s)
	s = d.atObfus.ReplaceAllString(s, "@")
	s = d.dotObfus.ReplaceAllString(s, ".")
	s = d.dotWord.ReplaceAllString(s, ".")
	// transformers carry state, so the chain is built per call
	accentFold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(accentFold, s); err == nil {
		s = folded
	}
	return strings.TrimSpace(d.spaces.ReplaceAllString(s, " "))
}

// Detect scores text. Emails are left to the PII detector: text containing
// one is never blocked here. The email check runs before spaces around "@"
// are removed so "me @john.doe" still counts as a handle.
func (d *SocialDetector) Detect(text string) SocialResult {
	loose := d.normalizeLoose(text)
	s := d.atSpacing.ReplaceAllString(loose, "@")
	res := SocialResult{Normalized: s}
	if s == "" || d.email.MatchString(loose) {
		return res
	}

	var taken []span

	// known social URLs, +2 once
	urlHit := false
	for _, m := range d.url.FindAllStringSubmatchIndex(s, -1) {
		res.Evidence = append(res.Evidence, Evidence{Kind: EvidenceURL, Start: m[2], End: m[3], Value: s[m[2]:m[3]], Validated: true})
		taken = append(taken, span{m[2], m[3]})
		urlHit = true
	}
	if urlHit {
		res.Score += 2
	}

	// bare @handles outside the whitelist, +2 once
	handleHit := false
	for _, m := range d.handle.FindAllStringSubmatchIndex(s, -1) {
		name := strings.TrimRight(s[m[2]:m[3]], ".")
		end := m[2] + len(name)
		if overlapsAny(taken, m[0], end) {
			continue
		}
		taken = append(taken, span{m[0], end})
		if _, ok := d.whitelist[name]; ok {
			continue
		}
		res.Evidence = append(res.Evidence, Evidence{Kind: EvidenceHandle, Start: m[0], End: end, Value: "@" + name, Validated: true})
		handleHit = true
	}
	if handleHit {
		res.Score += 2
	}

	// platform cues: tags and handle-like tokens near the cue, +1 each
	seen := make(map[string]struct{})
	for _, c := range d.cue.FindAllStringSubmatchIndex(s, -1) {
		platform := d.platformFor[s[c[2]:c[3]]]
		lo, hi := runeWindow(s, c[0], c[1], cueWindow)
		window := s[lo:hi]

		for _, t := range d.discordTag.FindAllStringIndex(window, -1) {
			start, end := lo+t[0], lo+t[1]
			value := s[start:end]
			if _, dup := seen[value]; dup || overlapsAny(taken, start, end) {
				continue
			}
			seen[value] = struct{}{}
			taken = append(taken, span{start, end})
			res.Evidence = append(res.Evidence, Evidence{Kind: EvidenceDiscordTag, Start: start, End: end, Value: value, Validated: true})
			res.Score++
		}

		for _, t := range d.token.FindAllStringIndex(window, -1) {
			start, end := lo+t[0], lo+t[1]
			value := strings.Trim(s[start:end], ".")
			if !handleLike(value) {
				continue
			}
			if _, dup := seen[value]; dup || overlapsAny(taken, start, end) {
				continue
			}
			seen[value] = struct{}{}
			taken = append(taken, span{start, end})
			validated := false
			if shape, ok := d.shapes[platform]; ok {
				validated = shape.MatchString(value)
			}
			res.Evidence = append(res.Evidence, Evidence{Kind: EvidenceHandleLike, Start: start, End: end, Value: value, Validated: validated})
			res.Score++
		}
	}

	// solicitation phrase, +1 once
	if loc := d.phrase.FindStringIndex(s); loc != nil {
		res.Evidence = append(res.Evidence, Evidence{Kind: EvidencePhrase, Start: loc[0], End: loc[1], Value: s[loc[0]:loc[1]], Validated: true})
		res.Score++
	}

	if d.looksLikeCode(s) || (res.Score < blockScore && d.phoneLike.MatchString(s)) {
		res.Score = max(0, res.Score-1)
	}

	res.Blocked = res.Score >= blockScore
	return res
}

// looksLikeCode needs two distinct code signals; a lone ";" or "info:" is
// ordinary punctuation.
func (d *SocialDetector) looksLikeCode(s string) bool {
	n := 0
	for _, re := range d.codeSignals {
		if re.MatchString(s) {
			n++
		}
	}
	return n >= 2
}

// handleLike accepts tokens that mix letters with digits, "_" or ".".
// Plain words and bare numbers are too ambiguous to count.
func handleLike(tok string) bool {
	if len(tok) < 3 {
		return false
	}
	var letter, mark bool
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z':
			letter = true
		case r >= '0' && r <= '9', r == '_', r == '.':
			mark = true
		}
	}
	return letter && mark
}

func overlapsAny(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && sp.start < end {
			return true
		}
	}
	return false
}

// runeWindow widens [start,end) by n bytes on each side without splitting
// a UTF-8 sequence.
func runeWindow(s string, start, end, n int) (int, int) {
	lo := max(0, start-n)
	for lo > 0 && !utf8.RuneStart(s[lo]) {
		lo--
	}
	hi := min(len(s), end+n)
	for hi < len(s) && !utf8.RuneStart(s[hi]) {
		hi++
	}
	return lo, hi
}
