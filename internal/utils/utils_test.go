package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber(t *testing.T) {
	assert.Equal(t, "999", Number(999))
	assert.Equal(t, "1,234,567", Number(1234567))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.50 KiB", Bytes(1536))
	assert.Equal(t, "3.00 MiB", Bytes(3<<20))
	assert.Equal(t, "-", Bytes(-1))
}

func TestCompareVersions(t *testing.T) {
	cmp, err := CompareVersions("11.0.2.56313", "11.0.10.1")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = CompareVersions("1.2", "1.2.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = ParseVersionInfo("x.1")
	require.Error(t, err)
}

func TestProgressDisabledCountsConcurrently(t *testing.T) {
	p := NewProgress(100, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				p.Increment("file")
			}
		}()
	}
	wg.Wait()
	p.Finish()

	assert.Equal(t, 100, p.Current())
	assert.Equal(t, "file", p.Description())
}
