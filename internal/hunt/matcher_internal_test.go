package hunt

import (
	"testing"

	"casefile/internal/artifact"
)

func TestMatcherStrategies(t *testing.T) {
	cases := []struct {
		name     string
		indType  artifact.IndicatorType
		strategy artifact.MatchStrategy
		value    string
		field    string
		want     bool
	}{
		{"exact hit", artifact.IndicatorMD5, artifact.MatchExact, "AbC123", "abc123", true},
		{"exact miss on substring", artifact.IndicatorMD5, artifact.MatchExact, "abc123", "abc1234", false},
		{"normalized path separators", artifact.IndicatorPath, artifact.MatchNormalized, `C:\Windows\Temp\`, "c:/windows/temp", true},
		{"normalized trailing dot", artifact.IndicatorDomain, artifact.MatchNormalized, "evil.example.", "EVIL.EXAMPLE", true},
		{"phrase substring", artifact.IndicatorCommand, artifact.MatchPhrase, "invoke-mimikatz", "powershell -c Invoke-Mimikatz -DumpCreds", true},
		{"phrase miss", artifact.IndicatorCommand, artifact.MatchPhrase, "invoke-mimikatz", "powershell -c Get-Process", false},
		{"terms all present any order", artifact.IndicatorCommandLine, artifact.MatchTermSet, "certutil urlcache", "cmd /c CertUtil -f -urlcache http://x", true},
		{"terms partial miss", artifact.IndicatorCommandLine, artifact.MatchTermSet, "certutil urlcache", "certutil -hashfile x", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := compile(&artifact.Indicator{
				Type:     tc.indType,
				Value:    tc.value,
				Strategy: tc.strategy,
			})
			got := m.matchesDocument(map[string]any{"field": tc.field})
			if got != tc.want {
				t.Fatalf("match = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatcherWalksNestedFields(t *testing.T) {
	m := compile(&artifact.Indicator{
		Type:     artifact.IndicatorIP,
		Value:    "10.0.0.5",
		Strategy: artifact.MatchNormalized,
	})

	fields := map[string]any{
		"Event": map[string]any{
			"Network": map[string]any{
				"Destinations": []any{"10.0.0.4", "10.0.0.5"},
			},
		},
	}
	if !m.matchesDocument(fields) {
		t.Fatal("nested array value must match")
	}
}

func TestMatcherDefaultsStrategyFromType(t *testing.T) {
	m := compile(&artifact.Indicator{Type: artifact.IndicatorCommand, Value: "whoami"})
	if m.strategy != artifact.MatchPhrase {
		t.Fatalf("strategy = %s, want phrase", m.strategy)
	}
}
