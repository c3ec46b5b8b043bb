package scanner

import (
	"Portfolio_Pipeline/config"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantCache_Decide(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.jpg")
	now := time.Now()

	fresh := NewVariantCache(config.CachePolicyFreshness, false)
	exist := NewVariantCache(config.CachePolicyExistence, false)

	d, err := fresh.Decide(target, now)
	require.NoError(t, err)
	assert.Equal(t, Missing, d)
	assert.True(t, d.NeedsGeneration())

	touch(t, target)
	require.NoError(t, os.Chtimes(target, now.Add(-time.Hour), now.Add(-time.Hour)))

	d, err = fresh.Decide(target, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Fresh, d)
	assert.False(t, d.NeedsGeneration())

	// 修改时间相同视为新鲜
	d, err = fresh.Decide(target, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Fresh, d)

	d, err = fresh.Decide(target, now)
	require.NoError(t, err)
	assert.Equal(t, Stale, d)

	d, err = exist.Decide(target, now)
	require.NoError(t, err)
	assert.Equal(t, Fresh, d)

	d, err = NewVariantCache(config.CachePolicyExistence, true).Decide(target, now)
	require.NoError(t, err)
	assert.Equal(t, Forced, d)
}

func TestVariantCache_DirectoryAtTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.Mkdir(target, 0755))

	_, err := NewVariantCache(config.CachePolicyFreshness, false).Decide(target, time.Now())
	assert.Error(t, err)
}
