package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalysisStatusTerminal(t *testing.T) {
	require.True(t, StatusSuccess.Terminal())
	require.True(t, StatusFailedPermanent.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusFailedRetryable.Terminal())
}

func TestAnalysisStatusValid(t *testing.T) {
	for _, s := range []AnalysisStatus{StatusPending, StatusSuccess, StatusFailedRetryable, StatusFailedPermanent} {
		require.True(t, s.Valid(), string(s))
	}
	require.False(t, AnalysisStatus("failed").Valid())
	require.False(t, AnalysisStatus("").Valid())
}

func TestStringArrayNilHandling(t *testing.T) {
	// A nil array stores as an empty JSON list, never as SQL NULL
	var a StringArray
	v, err := a.Value()
	require.NoError(t, err)
	require.Equal(t, "[]", v)

	// Scanning NULL yields an empty, non-nil array
	require.NoError(t, a.Scan(nil))
	require.NotNil(t, a)
	require.Empty(t, a)

	// Order survives a round trip
	a = StringArray{"z", "a", "m"}
	v, err = a.Value()
	require.NoError(t, err)

	var b StringArray
	require.NoError(t, b.Scan(v))
	require.Equal(t, StringArray{"z", "a", "m"}, b)
}
