package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("Greenfield Farm\n"), "Farm name", &out)
	require.NoError(t, err)
	assert.Equal(t, "Greenfield Farm", got)
	assert.Contains(t, out.String(), "Farm name")
}

func TestGetSimpleText_EOFKeepsPartialLine(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)
}

func TestGetPassword_Error(t *testing.T) {
	orig := readPassword
	readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { readPassword = orig })

	var out bytes.Buffer
	_, err := GetPassword(&out)
	require.Error(t, err)
}

func TestGetInt64(t *testing.T) {
	var out bytes.Buffer

	n, err := GetInt64(rdr("42\n"), "Count", &out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = GetInt64(rdr("many\n"), "Count", &out)
	require.Error(t, err)
}

func TestGetFloat(t *testing.T) {
	var out bytes.Buffer

	f, err := GetFloat(rdr("12.5\n"), "Quantity", &out)
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	f, err = GetFloat(rdr("\n"), "Quantity", &out)
	require.NoError(t, err)
	assert.Zero(t, f)

	_, err = GetFloat(rdr("lots\n"), "Quantity", &out)
	require.Error(t, err)
}

func TestGetDate(t *testing.T) {
	var out bytes.Buffer

	d, err := GetDate(rdr("2026-08-15\n"), "Date", &out)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), d)

	// Empty input means today at midnight UTC.
	d, err = GetDate(rdr("\n"), "Date", &out)
	require.NoError(t, err)
	now := time.Now().UTC()
	assert.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), d)

	_, err = GetDate(rdr("15/08/2026\n"), "Date", &out)
	require.Error(t, err)
}

func TestGetOptionalDate(t *testing.T) {
	var out bytes.Buffer

	d, ok, err := GetOptionalDate(rdr("2026-01-01\n"), "From", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), d)

	_, ok, err = GetOptionalDate(rdr("\n"), "From", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}
