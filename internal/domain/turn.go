package domain

// CurrentPlayer is the player whose turn it is to call a number.
func (r *Room) CurrentPlayer() (Player, bool) {
	if r.Status != StatusPlaying || len(r.Players) == 0 {
		return Player{}, false
	}
	return r.Players[r.TurnIndex%len(r.Players)], true
}

// validateCall checks a number call against the turn rules without
// touching the room.
func (r *Room) validateCall(requesterID string, number int) (Player, error) {
	if r.Status != StatusPlaying {
		return Player{}, ErrNotPlaying
	}
	idx := r.indexOf(requesterID)
	if idx < 0 {
		return Player{}, ErrPlayerNotFound
	}
	if !numberInRange(number, r.GridSize) {
		return Player{}, ErrNumberOutOfRange
	}
	current, _ := r.CurrentPlayer()
	if current.ID != requesterID {
		return Player{}, ErrNotYourTurn
	}
	if isCalled(r.CalledNumbers, number) {
		return Player{}, ErrDuplicateNumber
	}
	return r.Players[idx], nil
}

func (r *Room) advanceTurn() Player {
	r.TurnIndex = (r.TurnIndex + 1) % len(r.Players)
	return r.Players[r.TurnIndex]
}
