package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = Fields{
	Artist:      "Queen, David Bowie",
	Album:       "Hot Space",
	TrackNumber: "11",
	Title:       "Under Pressure",
}

func TestParse_RejectsBadPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    error
	}{
		{"unknown token", "{artist} - {year}", ErrUnknownToken},
		{"case sensitive token", "{TrackNumber}", ErrUnknownToken},
		{"unclosed brace", "{artist - {title}", ErrUnknownToken},
		{"missing open brace", "artist} - {title}", ErrUnbalancedBrace},
		{"dangling open brace", "{title} {", ErrUnbalancedBrace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.pattern)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Parse("  ")
	assert.Error(t, err)
}

func TestTemplate_Execute(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"{trackNumber} - {artist} - {title}", "11 - Queen, David Bowie - Under Pressure"},
		{"{artist}/{album}/{trackNumber} {title}", "Queen, David Bowie/Hot Space/11 Under Pressure"},
		{"static", "static"},
		{"{title}{title}", "Under PressureUnder Pressure"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			tmpl, err := Parse(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tmpl.Execute(sample))
			assert.Equal(t, tt.pattern, tmpl.String())
		})
	}
}

func TestTemplate_ValuesCannotCreateDirectories(t *testing.T) {
	tmpl, err := Parse("{artist}/{title}")
	require.NoError(t, err)

	got := tmpl.Execute(Fields{Artist: "AC/DC", Title: "T.N.T."})
	assert.Equal(t, "AC-DC/T.N.T.", got)
}

func TestNamer_Name(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		underscored bool
		fields      Fields
		want        string
	}{
		{
			name:    "plain",
			pattern: "{trackNumber} - {artist} - {title}",
			fields:  sample,
			want:    "11 - Queen, David Bowie - Under Pressure",
		},
		{
			name:        "underscored",
			pattern:     "{trackNumber} - {artist} - {title}",
			underscored: true,
			fields:      Fields{Artist: "The B-52's", TrackNumber: "03", Title: "Love Shack (Edit) v.2"},
			want:        "03__the_b_52_s__love_shack_edit_v2",
		},
		{
			name:        "underscored keeps sub directories",
			pattern:     "{artist}/{album}/{title}",
			underscored: true,
			fields:      Fields{Artist: "Daft Punk", Album: "Discovery", Title: "One More Time"},
			want:        "daft_punk/discovery/one_more_time",
		},
		{
			name:    "parent directory segments are dropped",
			pattern: "{artist}/{title}",
			fields:  Fields{Artist: "..", Title: "Song"},
			want:    "Song",
		},
		{
			name:    "hidden basename is made visible",
			pattern: "{title}",
			fields:  Fields{Title: "...Baby One More Time"},
			want:    "Baby One More Time",
		},
		{
			name:    "empty result",
			pattern: "{title}",
			fields:  Fields{},
			want:    "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, NewNamer(tmpl, tt.underscored).Name(tt.fields))
		})
	}
}

func TestPadNumber(t *testing.T) {
	assert.Equal(t, "01", PadNumber(1, 2))
	assert.Equal(t, "001", PadNumber(1, 3))
	assert.Equal(t, "123", PadNumber(123, 2))
	assert.Equal(t, "00", PadNumber(0, 2))
}
