package main

import (
	"context"

	"github.com/loppilove/waitlist-api/internal/models"
	"github.com/loppilove/waitlist-api/pkg/marketing"
)

type entryLister interface {
	ListEntries(ctx context.Context, afterEmail string, limit int) ([]*models.WaitlistEntry, error)
}

type contactSyncer interface {
	Sync(ctx context.Context, email, source string) marketing.SyncResult
}

type backfillReport struct {
	Synced    int
	Failed    int
	LastEmail string
}

// backfill pages through the store and syncs each entry in order. LastEmail
// can be passed back as after to resume.
func backfill(ctx context.Context, lister entryLister, syncer contactSyncer, after string, pageSize int) (backfillReport, error) {
	report := backfillReport{LastEmail: after}
	if pageSize < 1 {
		pageSize = 100
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := lister.ListEntries(ctx, report.LastEmail, pageSize)
		if err != nil {
			return report, err
		}

		for _, entry := range page {
			if result := syncer.Sync(ctx, entry.Email, entry.Source); result.Success {
				report.Synced++
			} else {
				report.Failed++
			}
			report.LastEmail = entry.Email
		}

		if len(page) < pageSize {
			return report, nil
		}
	}
}
