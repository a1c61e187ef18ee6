package lobby

import (
	"sort"

	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

// rankScores builds the final leaderboard. The combined list is active
// participants (table order, scored by submitted results), then grace-pending
// participants (last known submitted results, flagged), then completed
// participants (completion order, scored by their frozen final score). The
// sort is stable descending, so equal scores keep that concatenation order.
func rankScores(table *ParticipantTable) []model.RankedScore {
	entries := make([]model.RankedScore, 0, table.TotalPending()+len(table.Completed()))

	for _, p := range table.OrderedActive() {
		entries = append(entries, model.RankedScore{
			Username: p.Username,
			Score:    p.SubmittedResults,
		})
	}
	for _, dp := range table.OrderedDisconnected() {
		entries = append(entries, model.RankedScore{
			Username:     dp.Participant.Username,
			Score:        dp.Participant.SubmittedResults,
			GracePending: true,
		})
	}
	for _, cp := range table.Completed() {
		entries = append(entries, model.RankedScore{
			Username: cp.Participant.Username,
			Score:    cp.FinalScore,
			Time:     cp.CompletedAt.UnixMilli(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
