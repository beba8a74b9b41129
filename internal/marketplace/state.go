package marketplace

import (
	"fmt"

	"github.com/sudo-init-do/gamevault/internal/models"
)

// transitions lists the legal next states for every order state. Terminal
// states have no entry.
var transitions = map[models.OrderState][]models.OrderState{
	models.OrderCreated:   {models.OrderFunded, models.OrderCancelled},
	models.OrderFunded:    {models.OrderDelivered, models.OrderDisputed, models.OrderCancelled},
	models.OrderDelivered: {models.OrderCompleted, models.OrderDisputed},
	models.OrderDisputed:  {models.OrderCompleted, models.OrderRefunded},
}

func canTransition(from, to models.OrderState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// advance moves o to the next state or fails with ErrInvalidTransition, leaving o untouched.
func advance(o *models.Order, to models.OrderState) error {
	if !canTransition(o.State, to) {
		return fmt.Errorf("order %s %s -> %s: %w", o.ID, o.State, to, models.ErrInvalidTransition)
	}
	o.State = to
	return nil
}
