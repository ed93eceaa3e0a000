package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/kikundi/core/feedback"
	appfs "github.com/trezcool/kikundi/fs"
)

const sampleSnapshot = "fixtures/sample.yaml"

// loadSnapshot decodes a YAML course snapshot; an empty path loads the embedded sample.
func loadSnapshot(path string) (feedback.Snapshot, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if path == "" {
		r, err = appfs.FS.Open(sampleSnapshot)
	} else {
		r, err = os.Open(path)
	}
	if err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "opening snapshot")
	}
	defer func() { _ = r.Close() }()

	var snap feedback.Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "decoding snapshot")
	}
	if snap.TakenAt.IsZero() {
		return feedback.Snapshot{}, errors.New("snapshot: taken_at is required")
	}
	return snap, nil
}
