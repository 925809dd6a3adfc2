package usecase

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")

	// ErrPlayerInGame refuses queueing while the player's last game on the
	// server has no recorded winner.
	ErrPlayerInGame = errors.New("player has an unscored game")
	// ErrPlayerInReadyCheck refuses queue mutations while the player is a
	// candidate in an active ready check.
	ErrPlayerInReadyCheck = errors.New("player is in an active ready check")
	// ErrSameRolesForDuo refuses duo requests naming the same role twice.
	ErrSameRolesForDuo = errors.New("duo partners must queue for different roles")
	// ErrConfirmationInProgress refuses starting a second scoring or
	// cancellation confirmation for the same game.
	ErrConfirmationInProgress = errors.New("game already has an active confirmation")
)
