package service

import (
	"regexp"
	"strings"

	config "github.com/xeinst/autopost/configs"
)

// Moderation reason codes. All independently evaluated checks are collected so
// a reviewer sees the full picture, never just the first failure.
const (
	ReasonTooShort      = "too_short"
	ReasonTooLong       = "too_long"
	ReasonToxicity      = "toxicity"
	ReasonSpam          = "spam"
	ReasonNearDuplicate = "near_duplicate"
	ReasonLinkPolicy    = "link_policy"
	ReasonBlockedFlair  = "blocked_flair"
)

// Verdict is the gate's structured result. Pass is true iff no reason fired.
type Verdict struct {
	Pass            bool     `json:"pass"`
	Reasons         []string `json:"reasons,omitempty"`
	ToxicityScore   float64  `json:"toxicity_score"`
	SpamScore       float64  `json:"spam_score"`
	SimilarityScore float64  `json:"similarity_score"`
}

// Candidate is the content under review plus the context the checks need.
type Candidate struct {
	Body        string
	Kind        string
	ParentFlair string
}

var (
	linkPattern    = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)

	marketingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:click\s+here|buy\s+now|limited\s+time|act\s+fast)\b`),
		regexp.MustCompile(`(?i)\b(?:don'?t\s+miss\s+out|exclusive\s+offer|special\s+deal)\b`),
		regexp.MustCompile(`(?i)\b(?:guaranteed|100%\s+free|no\s+risk|instant\s+results)\b`),
		regexp.MustCompile(`(?i)\b(?:make\s+money\s+fast|get\s+rich\s+quick|easy\s+money)\b`),
	}

	aggressiveWords = []string{"hate", "stupid", "idiot", "terrible", "awful", "worst"}
)

// ModerationGate applies the static policy to a candidate draft. It is a pure
// function over its inputs; recent bodies are passed in by the caller.
type ModerationGate struct {
	cfg         config.ModerationConfig
	blacklisted []string
}

func NewModerationGate(cfg config.ModerationConfig) *ModerationGate {
	blacklisted := make([]string, 0, len(cfg.BlacklistedWords))
	for _, w := range cfg.BlacklistedWords {
		blacklisted = append(blacklisted, strings.ToLower(w))
	}
	return &ModerationGate{cfg: cfg, blacklisted: blacklisted}
}

func (g *ModerationGate) Review(c Candidate, policy config.TargetPolicy, recentBodies []string) Verdict {
	var reasons []string

	words := strings.Fields(c.Body)
	if policy.MinLength > 0 && len(words) < policy.MinLength {
		reasons = append(reasons, ReasonTooShort)
	}
	if policy.MaxLength > 0 && len(words) > policy.MaxLength {
		reasons = append(reasons, ReasonTooLong)
	}

	toxicity := g.toxicityScore(c.Body)
	if toxicity >= g.cfg.ToxicityThreshold {
		reasons = append(reasons, ReasonToxicity)
	}

	spam := g.spamScore(c.Body)
	if spam >= g.cfg.SpamThreshold {
		reasons = append(reasons, ReasonSpam)
	}

	similarity := maxSimilarity(c.Body, recentBodies)
	if similarity >= g.cfg.SimilarityThreshold {
		reasons = append(reasons, ReasonNearDuplicate)
	}

	if !policy.AllowLinks && linkPattern.MatchString(c.Body) {
		reasons = append(reasons, ReasonLinkPolicy)
	}

	if flair := strings.ToLower(c.ParentFlair); flair != "" {
		for _, blocked := range policy.BlockedFlairs {
			if strings.Contains(flair, strings.ToLower(blocked)) {
				reasons = append(reasons, ReasonBlockedFlair)
				break
			}
		}
	}

	return Verdict{
		Pass:            len(reasons) == 0,
		Reasons:         reasons,
		ToxicityScore:   toxicity,
		SpamScore:       spam,
		SimilarityScore: similarity,
	}
}

// toxicityScore accumulates heuristic signals into [0, 1].
func (g *ModerationGate) toxicityScore(body string) float64 {
	lower := strings.ToLower(body)
	var score float64

	for _, word := range g.blacklisted {
		if strings.Contains(lower, word) {
			score += 0.4
		}
	}

	for _, pattern := range marketingPatterns {
		if pattern.MatchString(body) {
			score += 0.3
			break
		}
	}

	if len(body) > 0 {
		caps := 0
		for _, r := range body {
			if r >= 'A' && r <= 'Z' {
				caps++
			}
		}
		if float64(caps) > float64(len(body))*0.3 {
			score += 0.3
		}
	}

	if strings.Count(body, "!") > 3 {
		score += 0.2
	}

	aggressive := 0
	for _, word := range aggressiveWords {
		if strings.Contains(lower, word) {
			aggressive++
		}
	}
	if aggressive > 2 {
		score += 0.4
	}

	return clamp(score)
}

// spamScore accumulates link, mention, and repetition signals into [0, 1].
func (g *ModerationGate) spamScore(body string) float64 {
	var score float64

	if len(linkPattern.FindAllString(body, -1)) > 2 {
		score += 0.4
	}
	if len(mentionPattern.FindAllString(body, -1)) > 3 {
		score += 0.3
	}

	words := strings.Fields(strings.ToLower(body))
	if len(words) > 0 {
		counts := make(map[string]int)
		for _, w := range words {
			if len(w) > 3 {
				counts[w]++
			}
		}
		max := 0
		for _, n := range counts {
			if n > max {
				max = n
			}
		}
		if float64(max)/float64(len(words)) > 0.15 {
			score += 0.4
		}

		// repeated trigrams read as copy-paste
		trigrams := make(map[string]int)
		for i := 0; i+3 <= len(words); i++ {
			trigrams[strings.Join(words[i:i+3], " ")]++
		}
		for _, n := range trigrams {
			if n > 2 {
				score += 0.3
				break
			}
		}
	}

	return clamp(score)
}

// maxSimilarity is the highest word-set Jaccard similarity between body and
// any of the recent bodies.
func maxSimilarity(body string, recent []string) float64 {
	set := wordSet(body)
	if len(set) == 0 {
		return 0
	}

	var max float64
	for _, other := range recent {
		otherSet := wordSet(other)
		if len(otherSet) == 0 {
			continue
		}
		inter := 0
		for w := range set {
			if otherSet[w] {
				inter++
			}
		}
		union := len(set) + len(otherSet) - inter
		if union == 0 {
			continue
		}
		if sim := float64(inter) / float64(union); sim > max {
			max = sim
		}
	}
	return max
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
