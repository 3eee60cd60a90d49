package artifact

import "strings"

// IndicatorType enumerates the value kinds an analyst can hunt for.
type IndicatorType string

const (
	IndicatorIP          IndicatorType = "ipaddr"
	IndicatorURL         IndicatorType = "url"
	IndicatorDomain      IndicatorType = "domain"
	IndicatorFilename    IndicatorType = "filename"
	IndicatorPath        IndicatorType = "path"
	IndicatorMD5         IndicatorType = "md5"
	IndicatorSHA256      IndicatorType = "sha256"
	IndicatorUsername    IndicatorType = "username"
	IndicatorUserID      IndicatorType = "userid"
	IndicatorCommand     IndicatorType = "command"
	IndicatorCommandLine IndicatorType = "commandline"
)

// MatchStrategy selects how an indicator value is compared against
// document fields.
type MatchStrategy string

const (
	MatchExact      MatchStrategy = "exact"
	MatchNormalized MatchStrategy = "normalized"
	MatchPhrase     MatchStrategy = "phrase"
	MatchTermSet    MatchStrategy = "terms"
)

// Indicator is an analyst-defined IOC. The pipeline reads the enabled set and
// increments hit counts; creation and editing happen outside the pipeline.
type Indicator struct {
	ID       string
	CaseID   string
	Type     IndicatorType
	Value    string
	Enabled  bool
	Strategy MatchStrategy
	HitCount int64
}

var strategyByType = map[IndicatorType]MatchStrategy{
	IndicatorIP:          MatchNormalized,
	IndicatorURL:         MatchNormalized,
	IndicatorDomain:      MatchExact,
	IndicatorFilename:    MatchExact,
	IndicatorPath:        MatchNormalized,
	IndicatorMD5:         MatchExact,
	IndicatorSHA256:      MatchExact,
	IndicatorUsername:    MatchExact,
	IndicatorUserID:      MatchExact,
	IndicatorCommand:     MatchPhrase,
	IndicatorCommandLine: MatchTermSet,
}

// DefaultStrategy returns the match strategy used for an indicator type when
// the analyst did not pick one explicitly.
func DefaultStrategy(t IndicatorType) MatchStrategy {
	if s, ok := strategyByType[t]; ok {
		return s
	}
	return MatchExact
}

// ParseIndicatorType converts a string into a known IndicatorType.
func ParseIndicatorType(value string) (IndicatorType, bool) {
	t := IndicatorType(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := strategyByType[t]; !ok {
		return "", false
	}
	return t, true
}
