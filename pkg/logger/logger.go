// Package logger builds the zerolog logger used across the EasySave
// service. Output goes to stdout by default, to a file when a path is
// configured, or to any writer (tests log into a buffer).
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type Build struct {
	writer io.Writer
	path   string
}

func New() *Build {
	return &Build{}
}

func (build *Build) FromPath(path string) *Build {
	build.path = path
	return build
}

func (build *Build) FromBuffer(w io.Writer) *Build {
	build.writer = w
	return build
}

// Make finalizes the builder into a logger. A configured path wins over a
// configured writer; with neither, stdout is used.
func (build *Build) Make() (zerolog.Logger, error) {
	var writer io.Writer = os.Stdout
	if build.writer != nil {
		writer = build.writer
	}
	if build.path != "" {
		file, err := os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writer = zerolog.SyncWriter(file)
	}
	return zerolog.New(writer).With().Timestamp().Logger(), nil
}
