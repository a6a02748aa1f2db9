package naming

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFilename(t *testing.T) {
	ts := time.Date(2024, time.January, 2, 3, 4, 5, 123456789, time.UTC)

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "name and compact timestamp", template: "%NAME_%Y%m%d_%H%M%S", want: "Valent1ne_20240102_030405"},
		{name: "default template", template: DefaultTemplate, want: "Valent1ne_02.01.2024_03-04-05"},
		{name: "literal only", template: "clip", want: "clip"},
		{name: "escaped percent", template: "100%%_%NAME", want: "100%_Valent1ne"},
		{name: "microseconds", template: "%S.%f", want: "05.123456"},
		{name: "weekday and month names", template: "%a %A %b %B", want: "Tue Tuesday Jan January"},
		{name: "weekday number", template: "%w", want: "2"},
		{name: "twelve hour clock", template: "%I%p", want: "03AM"},
		{name: "short year", template: "%y", want: "24"},
		{name: "day of year", template: "%j", want: "002"},
		{name: "week numbers", template: "%U-%W", want: "00-01"},
		{name: "utc offset", template: "%z", want: "+0000"},
		{name: "name twice", template: "%NAME-%NAME", want: "Valent1ne-Valent1ne"},
		{name: "percent before NAME literal", template: "%%NAME", want: "%NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFilename("Valent1ne", ts, tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFilename_Deterministic(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	ts := time.Date(2023, time.December, 31, 23, 59, 59, 0, loc)

	first, err := FormatFilename("Game", ts, "%NAME %Y-%m-%d %H.%M.%S %z %Z")
	require.NoError(t, err)
	second, err := FormatFilename("Game", ts, "%NAME %Y-%m-%d %H.%M.%S %z %Z")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Game 2023-12-31 23.59.59 -0500 EST", first)
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		wantPos   int
		directive string
	}{
		{name: "unknown directive", template: "%NAME_%Q", wantPos: 6, directive: "%Q"},
		{name: "trailing percent", template: "%NAME_%", wantPos: 6, directive: "%"},
		{name: "lower-case name is unknown", template: "%name", wantPos: 0, directive: "%n"},
		{name: "unsupported strftime directive", template: "%c", wantPos: 0, directive: "%c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(tt.template)
			require.Error(t, err)

			var te *TemplateError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.wantPos, te.Pos)
			assert.Equal(t, tt.directive, te.Directive)
		})
	}
}

func TestValidateTemplate_Valid(t *testing.T) {
	for _, tpl := range []string{"", DefaultTemplate, "%%", "%a%A%w%d%b%B%m%y%Y%H%I%p%M%S%f%z%Z%j%U%W%%%NAME"} {
		assert.NoError(t, ValidateTemplate(tpl), tpl)
	}
}

func TestParseTemplate_String(t *testing.T) {
	tpl, err := ParseTemplate("%NAME_%Y")
	require.NoError(t, err)
	assert.Equal(t, "%NAME_%Y", tpl.String())
	assert.Equal(t, "x_2024", tpl.Format("x", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}
