package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCacheCounters(t *testing.T) {
	r := New()

	r.CacheHit("indicator")
	r.CacheHit("indicator")
	r.CacheMiss("indicator")
	r.CacheEvicted("strategy", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheHits.WithLabelValues("indicator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheMisses.WithLabelValues("indicator")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.cacheEvictions.WithLabelValues("strategy")))
}

func TestRecorderWriteText(t *testing.T) {
	r := New()
	r.CacheHit("merge")
	r.Failure("indicator", "ichimoku")
	r.ObserveStage("indicators", 20*time.Millisecond)
	r.Fetch("coingecko", "ok")

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, `coincast_cache_hits_total{cache="merge"} 1`)
	assert.Contains(t, out, `coincast_component_failures_total{kind="indicator",name="ichimoku"} 1`)
	assert.Contains(t, out, `coincast_stage_duration_seconds_count{stage="indicators"} 1`)
	assert.Contains(t, out, `coincast_provider_fetches_total{outcome="ok",provider="coingecko"} 1`)
}
