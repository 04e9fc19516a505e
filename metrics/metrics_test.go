package metrics

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMetrics(t *testing.T) {
	jm := NewJobMetrics()
	jm.SetInterval("pricer", "update", time.Minute)
	jm.ReportSuccess("pricer", "update", 250*time.Millisecond)
	jm.ReportError("pricer", "update", errors.New("upstream 429"))
	jm.ReportError("pricer", "update", errors.New("upstream 429"))
	jm.ReportSuccess("parser", "ethereum", 10*time.Millisecond)

	snapshot := jm.Snapshot()
	require.Len(t, snapshot, 2)

	var pricer JobStatus
	for _, s := range snapshot {
		if s.Service == "pricer" {
			pricer = s
		}
	}
	assert.Equal(t, time.Minute, pricer.Interval)
	assert.Equal(t, 250*time.Millisecond, pricer.Duration)
	assert.EqualValues(t, 2, pricer.ErrorCount)
	assert.Equal(t, "upstream 429", pricer.LastError)
	require.NotNil(t, pricer.LastSuccessAt)
	require.NotNil(t, pricer.LastErrorAt)
}
