package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/xeinst/autopost/internal/repository"
)

// ReportJob logs a daily summary of ledger activity for the previous day.
type ReportJob struct {
	ar  repository.ActivityRepository
	clk clock.Clock
}

func NewReportJob(ar repository.ActivityRepository, clk clock.Clock) *ReportJob {
	return &ReportJob{ar: ar, clk: clk}
}

func (j *ReportJob) Run() {
	ctx := context.Background()

	now := j.clk.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from := midnight.Add(-24 * time.Hour)

	counts, err := j.ar.CountByStateBetween(ctx, from, midnight)
	if err != nil {
		slog.Error("daily report failed", "err", err)
		return
	}

	slog.Info("daily activity report",
		"day", from.Format("2006-01-02"),
		"posted", counts["posted"],
		"failed", counts["failed"],
		"rejected", counts["rejected"],
		"pending_review", counts["pending_review"])
}
