// Package distribution implements the equal-distribution recipient planner
// and test-after probe interleaving (pure, no I/O — trivially unit-tested).
package distribution

import (
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Segment is the contiguous slice of recipients (by EmailLog id) assigned
// to one sender, before rendering.
type Segment struct {
	Sender     domain.Sender
	EmailLogIDs []string
	Recipients []domain.Recipient
}

// Split partitions N recipients across S senders so each sender gets
// floor(N/S) or ceil(N/S), contiguously, with the first N mod S senders
// receiving the extra recipient.
func Split(emailLogIDs []string, recipients []domain.Recipient, senders []domain.Sender) []Segment {
	n := len(recipients)
	s := len(senders)
	if s == 0 {
		return nil
	}

	base := n / s
	extra := n % s

	segments := make([]Segment, s)
	offset := 0
	for i, sender := range senders {
		size := base
		if i < extra {
			size++
		}
		segments[i] = Segment{
			Sender:      sender,
			EmailLogIDs: emailLogIDs[offset : offset+size],
			Recipients:  recipients[offset : offset+size],
		}
		offset += size
	}
	return segments
}

// RenderFunc pre-renders one recipient's task; callers supply this so the
// distribution package stays free of template/transport concerns.
type RenderFunc func(emailLogID *string, recipient domain.Recipient) domain.RenderedTask

// BuildBatches turns each segment into a SenderBatch, interleaving
// test-after probe tasks every testAfterCount-th real recipient.
func BuildBatches(campaignID string, segments []Segment, testAfterEmail string, testAfterCount int, renderTask RenderFunc) []domain.SenderBatch {
	batches := make([]domain.SenderBatch, 0, len(segments))

	// taskNumber counts recipients across every segment/sender, matching
	// tasks_v2.py's single global task_counter rather than a per-sender one
	// — the probe subject and ExpectedProbes must agree on the same count.
	taskNumber := 0

	for _, seg := range segments {
		batch := domain.SenderBatch{CampaignID: campaignID, Sender: seg.Sender}

		for i, recip := range seg.Recipients {
			logID := seg.EmailLogIDs[i]
			task := renderTask(&logID, recip)
			batch.Tasks = append(batch.Tasks, task)
			taskNumber++

			if testAfterCount > 0 && testAfterEmail != "" && taskNumber%testAfterCount == 0 {
				probe := renderTask(nil, domain.Recipient{Email: testAfterEmail, Variables: recip.Variables})
				probe.Subject = fmt.Sprintf("[TEST AFTER %d] %s", taskNumber, task.Subject)
				probe.BodyHTML = testAfterBanner(taskNumber) + probe.BodyHTML
				probe.BodyPlain = testAfterBannerPlain(taskNumber) + probe.BodyPlain
				batch.Tasks = append(batch.Tasks, probe)
			}
		}

		batches = append(batches, batch)
	}

	return batches
}

func testAfterBanner(n int) string {
	return fmt.Sprintf("<p><strong>[Test After #%d probe]</strong></p>", n)
}

func testAfterBannerPlain(n int) string {
	return fmt.Sprintf("[Test After #%d probe]\n", n)
}

// ExpectedProbes returns floor(totalRecipients/testAfterCount), the
// invariant-1 probe count when test-after is enabled.
func ExpectedProbes(totalRecipients, testAfterCount int) int {
	if testAfterCount <= 0 {
		return 0
	}
	return totalRecipients / testAfterCount
}
