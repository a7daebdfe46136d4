package utils

import "fmt"

// RunAndWrapOnError runs the given function and joins its error with the passed one, if any.
func RunAndWrapOnError(runnable func() error, existingErr error) error {
	if runnable == nil {
		return existingErr
	}

	if err := runnable(); err != nil {
		if existingErr == nil {
			return err
		}
		return fmt.Errorf(`failed to run "%w" while handling error "%w"`, err, existingErr)
	}
	return existingErr
}
