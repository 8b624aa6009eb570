package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// DocumentCounter reports the size of the document index.
type DocumentCounter interface {
	DocumentCount(ctx context.Context) int64
}

// IndexStatsJob periodically logs the index size, so an empty or unreachable
// index shows up in the logs before users notice "no information" answers.
type IndexStatsJob struct {
	counter DocumentCounter
}

func NewIndexStatsJob(counter DocumentCounter) *IndexStatsJob {
	return &IndexStatsJob{counter: counter}
}

func (j *IndexStatsJob) Name() string {
	return "index_stats"
}

func (j *IndexStatsJob) Run(ctx context.Context) error {
	if j.counter == nil {
		return nil
	}
	count := j.counter.DocumentCount(ctx)
	logger := logutil.GetLogger(ctx)
	if count == 0 {
		logger.Warn("document index is empty or unreachable")
		return nil
	}
	logger.Info("document index stats", zap.Int64("documents", count))
	return nil
}
