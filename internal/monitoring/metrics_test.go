package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRequest(true)
	mc.RecordRequest(true)
	mc.RecordRequest(false)
	mc.RecordCompletion(true, 120)
	mc.RecordCompletion(false, 30)
	mc.RecordResearch()
	mc.RecordQuotaRejection()
	mc.RecordQuotaRejection()

	stats := mc.FullStats()
	assert.Equal(t, int64(3), stats.Requests.Total)
	assert.Equal(t, int64(2), stats.Requests.Successful)
	assert.Equal(t, int64(1), stats.Requests.Failed)
	assert.Equal(t, int64(2), stats.Completions.Total)
	assert.Equal(t, int64(1), stats.Completions.Streamed)
	assert.Equal(t, int64(150), stats.Completions.PromptTokens)
	assert.Equal(t, int64(1), stats.Research.Completed)
	assert.Equal(t, int64(2), stats.Research.QuotaRejections)
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h 30m"},
		{25*time.Hour + 5*time.Minute, "1d 1h 5m"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatDuration(c.d))
	}
}
