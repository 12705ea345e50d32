// file: pkg/vdisk/errors.go

package vdisk

import "errors"

var (
	ErrInvalidInput                = errors.New("invalid input")
	ErrInsufficientContiguousSpace = errors.New("not enough contiguous space")
	ErrInsufficientSpace           = errors.New("not enough free blocks")
	ErrNotFound                    = errors.New("file not found")
	ErrBusy                        = errors.New("disk is busy with another operation")
	ErrBlockOutOfRange             = errors.New("block number out of range")
	ErrBlockAlreadyFree            = errors.New("block already free")
	ErrBlockInUse                  = errors.New("block already allocated")
	ErrGeometryMismatch            = errors.New("disk geometry mismatch")
	ErrInconsistent                = errors.New("disk state inconsistent")
)
