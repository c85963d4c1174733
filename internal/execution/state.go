package execution

import "github.com/ShayCichocki/decomp/pkg/models"

// transitions lists the legal status changes. Nothing moves back to an
// earlier state.
var transitions = map[models.SubtaskStatus][]models.SubtaskStatus{
	models.SubtaskStatusPending:    {models.SubtaskStatusReady, models.SubtaskStatusBlocked, models.SubtaskStatusSkipped},
	models.SubtaskStatusBlocked:    {models.SubtaskStatusReady, models.SubtaskStatusSkipped},
	models.SubtaskStatusReady:      {models.SubtaskStatusInProgress, models.SubtaskStatusSkipped},
	models.SubtaskStatusInProgress: {models.SubtaskStatusComplete, models.SubtaskStatusFailed},
}

// canTransition reports whether from -> to is legal.
func canTransition(from, to models.SubtaskStatus) bool {
	if from == "" {
		from = models.SubtaskStatusPending
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
