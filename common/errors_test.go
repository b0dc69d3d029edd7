package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDefinitions(t *testing.T) {
	errs := []error{
		ErrNotFound,
		ErrExists,
		ErrOutOfSpace,
		ErrOutOfInodes,
		ErrHandleTableFull,
		ErrInvalidHandle,
		ErrNotDir,
		ErrFileTooLarge,
		ErrIsDir,
		ErrNotEmpty,
		ErrInvalidName,
		ErrInvalidArgument,
		ErrBusy,
	}

	seen := make(map[string]bool)
	for i, err := range errs {
		require.NotNil(t, err, "error at index %d should not be nil", i)
		msg := err.Error()
		assert.False(t, seen[msg], "duplicate error message: %s", msg)
		seen[msg] = true
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("create f1: %w", ErrExists)
	assert.True(t, errors.Is(err, ErrExists))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestGeometry(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(4), INODEBLK)
	assert.Equal(uint64(64), NINDIRECT)
	assert.Equal(uint64(76), MaxFileBlocks)
	assert.Equal(uint64(38912), MaxFileSize)
	assert.Equal(uint64(8), DIRENTBLK)
	assert.Equal(uint64(608), MaxDirEnts)
	assert.Equal("DIRECTORY", KindDir.String())
	assert.Equal("FILE", KindFile.String())
}
