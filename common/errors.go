package common

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrExists          = errors.New("already exists")
	ErrOutOfSpace      = errors.New("out of space")
	ErrOutOfInodes     = errors.New("out of inodes")
	ErrHandleTableFull = errors.New("handle table full")
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrNotDir          = errors.New("not a directory")
	ErrFileTooLarge    = errors.New("file too large")

	ErrIsDir           = errors.New("is a directory")
	ErrNotEmpty        = errors.New("directory not empty")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBusy            = errors.New("busy")
)
