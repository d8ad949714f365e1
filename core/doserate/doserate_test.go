package doserate_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/protonlab/scantime/core/doserate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTable = doserate.Table{
	{EnergyLowerBound: 70.0, MaxDoseRate: 50},
	{EnergyLowerBound: 70.3, MaxDoseRate: 55},
	{EnergyLowerBound: 150.0, MaxDoseRate: 100},
}

// silent discards degradation warnings in tests.
var silent = doserate.WithWarnFunc(func(string, error) {})

func TestTableLookup(t *testing.T) {
	tests := []struct {
		name     string
		energy   float64
		expected float64
	}{
		{"Lower Bound Inclusive", 70.0, 50},
		{"Inside Bucket", 70.2, 50},
		{"Next Bucket", 70.3, 55},
		{"Upper Bound Exclusive", 150.3, 0},
		{"Exact High Row", 150.0, 100},
		{"Below Table", 10, 0},
		{"Gap", 100, 0},
		{"NaN", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sampleTable.Lookup(tt.energy))
		})
	}
}

func TestTableLookupFirstMatchWins(t *testing.T) {
	overlapping := doserate.Table{
		{EnergyLowerBound: 100, MaxDoseRate: 10},
		{EnergyLowerBound: 100.1, MaxDoseRate: 20},
	}
	assert.Equal(t, 10.0, overlapping.Lookup(100.2))
	assert.Equal(t, 20.0, overlapping.Lookup(100.35))
}

func TestLoadTableCSV(t *testing.T) {
	input := "\ufeffenergy,max_doserate\n" +
		"# comment line\n" +
		"\n" +
		"70.0, 50\n" +
		"70.3,55\n" +
		"150,100\n"

	table, err := doserate.LoadTableCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, sampleTable, table)
}

func TestLoadTableCSVWithoutHeader(t *testing.T) {
	table, err := doserate.LoadTableCSV(strings.NewReader("70,50\n"))
	require.NoError(t, err)
	assert.Len(t, table, 1)
}

func TestLoadTableCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"Header Only", "energy,rate\n"},
		{"Single Column", "70\n"},
		{"Non Numeric Body", "energy,rate\n70,50\nabc,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := doserate.LoadTableCSV(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, doserate.ErrTableUnavailable)
		})
	}
}

func TestTableDigest(t *testing.T) {
	assert.Equal(t, sampleTable.Digest(), append(doserate.Table{}, sampleTable...).Digest())
	assert.NotEqual(t, sampleTable.Digest(), sampleTable[:1].Digest())
}

func TestProviderMemoizes(t *testing.T) {
	p := doserate.FromTable(sampleTable)

	assert.Equal(t, 100.0, p.MaxDoseRate(150.1))
	assert.Equal(t, 100.0, p.MaxDoseRate(150.1))
	assert.Equal(t, 0.0, p.MaxDoseRate(5))

	stats := p.Stats()
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 2, stats.Cached)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	p.Reset()
	stats = p.Stats()
	assert.Equal(t, 0, stats.Cached)
	assert.Zero(t, stats.Hits)
	assert.NoError(t, p.Err())
	assert.NotEmpty(t, p.Digest())
}

func TestProviderDoesNotCacheNaN(t *testing.T) {
	p := doserate.FromTable(sampleTable)
	assert.Equal(t, 0.0, p.MaxDoseRate(math.NaN()))
	assert.Equal(t, 0, p.Stats().Cached)
}

func TestProviderCacheBound(t *testing.T) {
	p := doserate.FromTable(sampleTable, doserate.WithCacheSize(2))
	for _, e := range []float64{1, 2, 3, 4} {
		p.MaxDoseRate(e)
	}
	assert.Equal(t, 2, p.Stats().Cached)
}

func TestProviderDegradesOnce(t *testing.T) {
	var warnings []string
	p := doserate.NewProvider(func() (doserate.Table, error) {
		return nil, errors.New("disk on fire")
	}, doserate.WithWarnFunc(func(msg string, _ error) {
		warnings = append(warnings, msg)
	}))

	assert.Equal(t, 0.0, p.MaxDoseRate(150))
	assert.Equal(t, 0.0, p.MaxDoseRate(70))
	assert.ErrorIs(t, p.Err(), doserate.ErrTableUnavailable)
	assert.Empty(t, p.Digest())
	assert.Len(t, warnings, 1)
}

func TestProviderFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doserate.csv")
	require.NoError(t, os.WriteFile(path, []byte("150,100\n"), 0o600))

	p := doserate.FromFile(path)
	assert.Equal(t, 100.0, p.MaxDoseRate(150))
	assert.Equal(t, path, p.Name())

	missing := doserate.FromFile(filepath.Join(dir, "nope.csv"), silent)
	assert.Equal(t, 0.0, missing.MaxDoseRate(150))
	assert.ErrorIs(t, missing.Err(), doserate.ErrTableUnavailable)

	unset := doserate.FromFile("", silent)
	assert.ErrorIs(t, unset.Err(), doserate.ErrTableUnavailable)
}

func TestProviderConcurrentLoad(t *testing.T) {
	var loads atomic.Int32
	p := doserate.NewProvider(func() (doserate.Table, error) {
		loads.Add(1)
		return sampleTable, nil
	})

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Go(func() {
			energy := 150 + float64(i%3)*0.1
			assert.Equal(t, 100.0, p.MaxDoseRate(energy))
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestRegistry(t *testing.T) {
	reg := doserate.NewRegistry(silent)
	a := reg.Get("a.csv")
	assert.Same(t, a, reg.Get("a.csv"))
	assert.NotSame(t, a, reg.Get("b.csv"))
	assert.Equal(t, 2, reg.Len())
}
