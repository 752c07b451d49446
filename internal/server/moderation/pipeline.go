// Package moderation decides whether a chat message leaks personal data or
// solicits contact off platform, and produces the redacted view shown to
// the other participant.
//
// Moderation runs in two stages. The fast path runs the PII and
// social-share detectors in process. Only when neither flags the message
// and the message is long enough to be worth it is the LLM fallback chain
// consulted.
package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/leroytan/the-website-sub000/internal/logging"
)

const (
	// ProviderFastPath tags verdicts produced without any network call.
	ProviderFastPath = "fast-path"

	// DefaultMinLength is the rune count below which unflagged text is
	// never escalated.
	DefaultMinLength = 30

	SocialMediaPlaceholder = "[SOCIAL_MEDIA]"
	FlaggedPlaceholder     = "[FLAGGED_CONTENT]"
	socialType             = "SOCIAL_MEDIA"
)

// Verdict is the outcome of a moderation call, identical in shape whichever
// stage produced it.
type Verdict struct {
	Filtered   bool     `json:"filtered"`
	Content    string   `json:"content"`
	Detected   []string `json:"detected"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Provider   string   `json:"provider"`
}

// Classifier is the slow path; *FallbackChain implements it.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Pipeline is the moderation entry point. It holds no mutable state.
type Pipeline struct {
	pii       *PIIDetector
	social    *SocialDetector
	chain     Classifier
	minLength int
	log       logging.Logger
}

func NewPipeline(pii *PIIDetector, social *SocialDetector, chain Classifier, minLength int, log logging.Logger) *Pipeline {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{pii: pii, social: social, chain: chain, minLength: minLength, log: log}
}

// Moderate classifies text. An error is returned only when escalation was
// needed and every provider failed.
func (p *Pipeline) Moderate(ctx context.Context, text string, threshold float64) (Verdict, error) {
	piiRes := p.pii.Analyze(text, threshold)
	socialRes := p.social.Detect(text)
	socialFlag := socialRes.Blocked && socialRes.Confidence() >= threshold

	if piiRes.Filtered || socialFlag {
		v := p.combine(text, piiRes, socialRes, socialFlag)
		p.log.Debug(ctx, "fast path flagged message", "detected", v.Detected, "confidence", v.Confidence)
		return v, nil
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) < p.minLength {
		return Verdict{Content: text, Reasoning: "short message, not escalated", Provider: ProviderFastPath}, nil
	}

	if p.chain == nil {
		return Verdict{Content: text, Reasoning: "no classifier configured", Provider: ProviderFastPath}, nil
	}

	v, err := p.chain.Classify(ctx, text)
	if err != nil {
		return Verdict{}, err
	}

	if !v.Filtered || v.Confidence < threshold {
		v.Filtered = false
		v.Content = text
		v.Detected = nil
		return v, nil
	}
	if strings.TrimSpace(v.Content) == "" || v.Content == text {
		v.Content = FlaggedPlaceholder
	}
	return v, nil
}

// combine merges the two fast path results into one redacted view: PII spans
// become "[TYPE]" and social evidence becomes "[SOCIAL_MEDIA]". If no piece
// of social evidence can be located in the text, the whole message is
// replaced.
func (p *Pipeline) combine(text string, piiRes PIIResult, socialRes SocialResult, socialFlag bool) Verdict {
	v := Verdict{Filtered: true, Content: text, Provider: ProviderFastPath}
	var reasons []string

	if piiRes.Filtered {
		v.Content = piiRes.Content
		v.Detected = append(v.Detected, piiRes.Detected...)
		v.Confidence = piiRes.Confidence
		reasons = append(reasons, "personal data: "+strings.Join(piiRes.Detected, ", "))
	}

	if socialFlag {
		redacted, found := redactSocial(v.Content, socialRes.Evidence)
		if found {
			v.Content = redacted
		} else {
			v.Content = SocialMediaPlaceholder
		}
		v.Detected = append(v.Detected, socialType)
		v.Confidence = max(v.Confidence, socialRes.Confidence())
		reasons = append(reasons, fmt.Sprintf("off-platform contact (score %d)", socialRes.Score))
	}

	v.Reasoning = strings.Join(reasons, "; ")
	return v
}

func redactSocial(text string, evidence []Evidence) (string, bool) {
	found := false
	out := text
	for _, e := range evidence {
		var expr string
		switch e.Kind {
		case EvidenceHandle:
			expr = `(?i)@\s*` + regexp.QuoteMeta(strings.TrimPrefix(e.Value, "@"))
		case EvidenceURL, EvidenceDiscordTag, EvidenceHandleLike:
			expr = `(?i)` + regexp.QuoteMeta(e.Value)
		default:
			continue
		}
		re := regexp.MustCompile(expr)
		if re.MatchString(out) {
			found = true
			out = re.ReplaceAllLiteralString(out, SocialMediaPlaceholder)
		}
	}
	return out, found
}
