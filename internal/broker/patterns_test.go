package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingTableIsTotalOverDefinedPatterns(t *testing.T) {
	patterns := []Pattern{
		PatternJobStart, PatternJobCancel, PatternJobRawData,
		PatternJobInitialBatchComplete, PatternJobIngestionComplete,
		PatternJobComplete, PatternJobFailed, PatternJobDataUpdate,
		PatternHealthCheck,
	}
	for _, p := range patterns {
		queue, err := routeQueue(p)
		require.NoError(t, err)
		assert.NotEmpty(t, queue)
	}
}

func TestRoutingTableMapsToExpectedQueues(t *testing.T) {
	cases := map[Pattern]string{
		PatternJobStart:                QueueIngestion,
		PatternJobCancel:               QueueIngestion,
		PatternJobRawData:              QueueAnalysis,
		PatternJobInitialBatchComplete: QueueGateway,
		PatternJobIngestionComplete:    QueueAnalysis,
		PatternJobComplete:             QueueGateway,
		PatternJobFailed:               QueueGateway,
		PatternJobDataUpdate:           QueueGateway,
		PatternHealthCheck:             QueueGateway,
	}
	for pattern, expected := range cases {
		got, err := routeQueue(pattern)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestRouteQueueRejectsUnknownPattern(t *testing.T) {
	_, err := routeQueue(Pattern("job.nonexistent"))
	assert.ErrorIs(t, err, ErrUnknownPattern)
}

func TestSubjectComposesQueueAndPattern(t *testing.T) {
	assert.Equal(t, "INGESTION.job.start", subject(QueueIngestion, PatternJobStart))
	assert.Equal(t, "GATEWAY.health.check", subject(QueueGateway, PatternHealthCheck))
}

func TestStreamSubjectsIsWildcardPerQueue(t *testing.T) {
	assert.Equal(t, []string{"INGESTION.>"}, streamSubjects(QueueIngestion))
}
