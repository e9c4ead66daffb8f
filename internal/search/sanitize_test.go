package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single word passes through",
			input: "deploy",
			want:  "deploy",
		},
		{
			name:  "multi word wrapped as phrase",
			input: "rolling deploy",
			want:  `"rolling deploy"`,
		},
		{
			name:  "strips query syntax characters",
			input: `title:alpha +beta "gamma"`,
			want:  `"title alpha beta gamma"`,
		},
		{
			name:  "keeps intra-word hyphen and underscore",
			input: "kebab-case snake_case",
			want:  `"kebab-case snake_case"`,
		},
		{
			name:  "collapses whitespace",
			input: "  lots   of\t\tspace  ",
			want:  `"lots of space"`,
		},
		{
			name:  "only specials yields empty",
			input: `+*:^~?()[]{}`,
			want:  "",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: "   \t\n ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeQuery(tt.input))
		})
	}
}
