package quota

// AccountStats is the supplemented per-account read-only statistics view
// (grounded on the original get_account_statistics helper). It is not
// part of CampaignProgress, which reports campaign-wide totals only.
type AccountStats struct {
	AccountID        string
	DailySent        int
	DailyLimit       int
	TotalSentAllTime int64
	SuccessRate      float64
}

// AccountStatsFor computes a point-in-time stats snapshot for one
// account given its current sent/failed counts for a campaign.
func AccountStatsFor(accountID string, dailySent, dailyLimit int, totalAllTime int64, sentCount, failedCount int) AccountStats {
	total := sentCount + failedCount
	rate := 0.0
	if total > 0 {
		rate = float64(sentCount) / float64(total)
	}
	return AccountStats{
		AccountID:        accountID,
		DailySent:        dailySent,
		DailyLimit:       dailyLimit,
		TotalSentAllTime: totalAllTime,
		SuccessRate:      rate,
	}
}
