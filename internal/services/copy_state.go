package services

import (
	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/models"
)

// copyTransitions lists the states each copy status may move to.
// Lost is reachable from every non-Available state and has no way out.
var copyTransitions = map[models.CopyStatus][]models.CopyStatus{
	models.CopyStatusAvailable:  {models.CopyStatusCheckedOut, models.CopyStatusReserved},
	models.CopyStatusReserved:   {models.CopyStatusCheckedOut, models.CopyStatusAvailable, models.CopyStatusLost},
	models.CopyStatusCheckedOut: {models.CopyStatusReturned, models.CopyStatusDamaged, models.CopyStatusLost},
	models.CopyStatusReturned:   {models.CopyStatusAvailable, models.CopyStatusLost},
	models.CopyStatusDamaged:    {models.CopyStatusAvailable, models.CopyStatusLost},
	models.CopyStatusLost:       {},
}

// CanTransition reports whether a copy may move from one status to another
func CanTransition(from, to models.CopyStatus) bool {
	for _, allowed := range copyTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition moves c to the target status, keeping checkout fields in step
func transition(c *models.ItemCopy, to models.CopyStatus) error {
	if !CanTransition(c.Status, to) {
		return circerrors.InvalidState("copy %d cannot move from %s to %s", c.ID, c.Status, to).
			WithDetails(map[string]any{"copy_id": c.ID, "from": c.Status, "to": to})
	}
	c.Status = to
	if to != models.CopyStatusCheckedOut {
		c.ClearCheckout()
	}
	if to != models.CopyStatusReserved {
		c.ClearHold()
	}
	return nil
}
