package notify

import (
	"errors"

	"crimefeed/internal/alert"
)

// Multi fans a candidate out to every configured channel. A failure on one
// channel does not stop the others; the joined error marks the whole
// dispatch as failed in the alert log.
type Multi struct {
	Content
	Channels []alert.Dispatcher
}

func (m *Multi) Dispatch(c alert.Candidate) error {
	var errs []error
	for _, ch := range m.Channels {
		if err := ch.Dispatch(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
