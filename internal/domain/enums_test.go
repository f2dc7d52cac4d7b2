package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        Format
		wantErr     bool
	}{
		{
			name:        "plain modern",
			description: "Modern Challenge 64",
			want:        FormatModern,
		},
		{
			name:        "premodern wins over host format token",
			description: "Premodern Showcase (Contraption)",
			want:        FormatPremodern,
		},
		{
			name:        "premodern wins over embedded modern",
			description: "Premodern League",
			want:        FormatPremodern,
		},
		{
			name:        "standard league",
			description: "Standard League",
			want:        FormatStandard,
		},
		{
			name:        "pauper challenge",
			description: "Pauper Challenge 32",
			want:        FormatPauper,
		},
		{
			name:        "no format keyword",
			description: "Commander Social Hour",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.description)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        Kind
		wantErr     bool
	}{
		{
			name:        "challenge",
			description: "Legacy Challenge 32",
			want:        KindChallenge,
		},
		{
			name:        "last chance is a qualifier",
			description: "Modern Last Chance",
			want:        KindQualifier,
		},
		{
			name:        "preliminary",
			description: "Pioneer Preliminary",
			want:        KindPreliminary,
		},
		{
			name:        "showcase",
			description: "Vintage Showcase Qualifier",
			want:        KindShowcase,
		},
		{
			name:        "no kind keyword",
			description: "Modern Special",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.description)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMirrors(t *testing.T) {
	assert.True(t, Mirrors(ResultWin, ResultLoss))
	assert.True(t, Mirrors(ResultLoss, ResultWin))
	assert.True(t, Mirrors(ResultDraw, ResultDraw))

	assert.False(t, Mirrors(ResultWin, ResultWin))
	assert.False(t, Mirrors(ResultLoss, ResultLoss))
	assert.False(t, Mirrors(ResultWin, ResultDraw))
	assert.False(t, Mirrors(ResultDraw, ResultLoss))
}
