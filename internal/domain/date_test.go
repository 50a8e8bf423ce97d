package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateLayouts(t *testing.T) {
	t.Parallel()

	want := NewDate(2025, time.March, 15)
	inputs := []string{
		"2025-03-15",
		"03/15/2025",
		"3/15/2025",
		"March 15, 2025",
		"March 15th, 2025",
		"Mar 15, 2025",
		"Mar. 15, 2025",
		"15 Mar 2025",
		"  March   15,  2025 ",
		"2025-03-15T18:30:00Z",
	}

	for _, in := range inputs {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		require.True(t, got.Equal(want), "%q parsed as %s", in, got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "TBD", "Q3 2025", "2025-02-30"} {
		_, err := ParseDate(in)
		require.Error(t, err, in)
	}
}

func TestDateJSON(t *testing.T) {
	t.Parallel()

	d := NewDate(2025, time.January, 2)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"2025-01-02"`, string(raw))

	var back Date
	require.NoError(t, json.Unmarshal([]byte(`"Jan 2, 2025"`), &back))
	require.True(t, back.Equal(d))

	require.Error(t, json.Unmarshal([]byte(`"soon"`), &back))
}

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	d := DateOf(time.Date(2025, time.December, 30, 23, 59, 0, 0, time.UTC))
	require.Equal(t, "2026-01-04", d.AddDays(5).String())
	require.Equal(t, 5, d.DaysUntil(d.AddDays(5)))
}
