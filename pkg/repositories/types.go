package repositories

import "fmt"

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

type ErrMatchFull struct {
}

func (e *ErrMatchFull) Error() string {
	return "match is already full"
}

func IsMatchFull(err error) bool {
	_, ok := err.(*ErrMatchFull)
	return ok
}

type ErrAlreadyInMatch struct {
}

func (e *ErrAlreadyInMatch) Error() string {
	return "player is already in the match"
}

func IsAlreadyInMatch(err error) bool {
	_, ok := err.(*ErrAlreadyInMatch)
	return ok
}

type ErrInvalidMove struct {
	Reason string
}

func (e *ErrInvalidMove) Error() string {
	return fmt.Sprintf("invalid move: %s", e.Reason)
}

func IsInvalidMove(err error) bool {
	_, ok := err.(*ErrInvalidMove)
	return ok
}
