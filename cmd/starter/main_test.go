package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLocations(t *testing.T) {
	in := "wilaya_code,wilaya_name,commune\n9,Blida,Boufarik\n16, Alger, Bab El Oued\n"
	locs, err := readLocations(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "09", locs[0].WilayaCode)
	assert.Equal(t, "Boufarik", locs[0].Commune)
	assert.Equal(t, "Alger", locs[1].WilayaName)

	_, err = readLocations(strings.NewReader("x,Blida,Boufarik\n"))
	assert.Error(t, err)

	_, err = readLocations(strings.NewReader("9,Blida\n"))
	assert.Error(t, err)
}
