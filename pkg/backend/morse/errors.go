package morse

import "errors"

var errShortResponse = errors.New("morse: vendor response too short")

// CommandFailedError reports a single batched record's non-zero status
// (spec.md §4.E): subsequent records in the batch still run.
type CommandFailedError struct {
	MessageID uint16
	Status    int16
}

func (e *CommandFailedError) Error() string {
	return "morse: vendor command failed"
}
