package cli

import (
	"context"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// transferJob is the part of a sync job the progress runner needs:
// a blocking Run plus pollable byte counters.
type transferJob interface {
	Run(ctx context.Context) error
	Total() int64
	Transferred() int64
}

// progressPollInterval matches the original client's 100ms progress
// refresh.
const progressPollInterval = 100 * time.Millisecond

// runWithProgress executes a transfer job while rendering a byte
// progress bar on stderr. In JSON mode (or when nothing will be
// transferred) the bar is suppressed and the job simply runs.
//
// The job observes ctx, so Ctrl-C cancels the transfer; the caller's
// error handling decides what cancellation means for the command.
func runWithProgress(ctx context.Context, job transferJob, description string) error {
	if IsJSONOutput() || job.Total() == 0 {
		return job.Run(ctx)
	}

	bar := progressbar.NewOptions64(job.Total(),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer: "=", SaucerHead: ">", SaucerPadding: " ", BarStart: "[", BarEnd: "]",
		}),
	)

	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			_ = bar.Set64(job.Transferred())
			_ = bar.Finish()
			return err
		case <-ticker.C:
			_ = bar.Set64(job.Transferred())
		}
	}
}
