package repository

import "errors"

var (
	// ErrActiveSessionExists is returned when a teacher already owns an unexpired active session.
	ErrActiveSessionExists = errors.New("teacher already has an active session")
	// ErrTemplateNotFound is returned when a student has no enrolled face template.
	ErrTemplateNotFound = errors.New("face template not found")
	// ErrInvalidStudentID is returned for ids that cannot name a template blob.
	ErrInvalidStudentID = errors.New("invalid student id")
)
