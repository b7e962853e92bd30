package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		pattern string
		want    bool
	}{
		{"exact", "Talk.SUCCESS", "Talk.SUCCESS", true},
		{"bare wildcard", "Talk.ERROR.timeout", "*", true},
		{"one level wildcard", "Talk.SUCCESS", "Talk.*", true},
		{"deep wildcard", "Foo.Bar.X.Y", "Foo.Bar.*", true},
		{"wildcard needs a segment", "Foo.Bar", "Foo.Bar.*", false},
		{"prefix is not a match", "Talk.SUCCESS.person", "Talk.SUCCESS", false},
		{"qualified is distinct", "Talk.SUCCESS", "Talk.SUCCESS.person", false},
		{"segment boundary", "Talker.SUCCESS", "Talk.*", false},
		{"empty pattern", "Talk.SUCCESS", "", false},
		{"empty event", "", "*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchEvent(tt.event, tt.pattern))
		})
	}
}

func TestWildcardCandidates(t *testing.T) {
	assert.Equal(t, []string{"A.B.*", "A.*"}, WildcardCandidates("A.B.C"))
	assert.Nil(t, WildcardCandidates("A"))
}

func TestTransitionMatchesDescriptors(t *testing.T) {
	tr := Transition{Event: "Talk.ERROR  Nav.*"}
	assert.Equal(t, []string{"Talk.ERROR", "Nav.*"}, tr.Descriptors())
	assert.True(t, tr.Matches("Talk.ERROR"))
	assert.True(t, tr.Matches("Nav.SUCCESS"))
	assert.False(t, tr.Matches("Talk.SUCCESS"))
}
