package dailyfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/aethalometer/errors"
)

func TestFilename_Valid(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{`"01-jan-16"`, "BC010116.csv"},
		{`01-jan-16`, "BC010116.csv"},
		{`"1-jan-16"`, "BC010116.csv"},
		{`"15-feb-117"`, "BC150217.csv"},
		{`"15-Feb-17"`, "BC150217.csv"},
		{`"15-FEB-17"`, "BC150217.csv"},
		{`"31-dec-99"`, "BC311299.csv"},
		{`"7-may-2000"`, "BC070500.csv"},
		{`"0"1-j"an-1"6`, "BC010116.csv"},
		{` "01-jan-17" `, "BC010117.csv"},
		{`"32-jan-16"`, "BC320116.csv"},
	}

	for _, test := range tests {
		t.Run(test.date, func(t *testing.T) {
			got, err := Filename(test.date)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestFilename_AllMonths(t *testing.T) {
	names := []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	want := []string{
		"BC050118.csv", "BC050218.csv", "BC050318.csv", "BC050418.csv",
		"BC050518.csv", "BC050618.csv", "BC050718.csv", "BC050818.csv",
		"BC050918.csv", "BC051018.csv", "BC051118.csv", "BC051218.csv",
	}

	for i, name := range names {
		got, err := Filename("05-" + name + "-18")
		require.NoError(t, err, name)
		assert.Equal(t, want[i], got)
	}
}

func TestFilename_Invalid(t *testing.T) {
	dates := []string{
		``,
		`"01jan16"`,
		`"01/jan/16"`,
		`"01-jann-16"`,
		`"A-jan-16"`,
		`"01-jan-A"`,
		`"01-jan"`,
		`"01-16"`,
		`"jan-16"`,
		`"01-jan-16-02"`,
		`"01-janvier-16"`,
	}

	for _, date := range dates {
		t.Run(date, func(t *testing.T) {
			name, err := Filename(date)
			require.Error(t, err)
			assert.Empty(t, name)
			assert.True(t, errors.IsCorrupted(err), "expected corrupted-data error, got %v", err)
			assert.False(t, errors.IsUnrecoverable(err))
			assert.ErrorIs(t, err, errors.ErrInvalidDate)
			assert.Contains(t, err.Error(), date)
		})
	}
}
