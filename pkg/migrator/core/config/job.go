package config

import (
	"fmt"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// JobConfig is the immutable per-job configuration handed to an engine.
type JobConfig struct {
	Name string
	Kind string
	// Mode is the transaction mode of a migration.
	Mode tx.Mode
	// SourceFetchSize bounds how many source rows the driver buffers per round trip.
	SourceFetchSize int
	// DestinationFetchSize bounds how many lookup rows the driver buffers (reconciliation).
	DestinationFetchSize int
	// Encoding is the character encoding of the job's query files.
	Encoding string
	// BufferSize is the read buffer size for query files.
	BufferSize int

	batchSize int
}

// BatchSize returns the write-batch size in effect: always 1 under ByRecord, otherwise the
// configured size.
func (j JobConfig) BatchSize() int {
	return j.Mode.BatchSize(j.batchSize)
}

// ConfiguredBatchSize returns the write-batch size as configured, before the mode is applied.
func (j JobConfig) ConfiguredBatchSize() int {
	return j.batchSize
}

// WithMode returns a copy of j running under mode. The configured batch size is kept, so switching
// back from ByRecord restores it.
func (j JobConfig) WithMode(mode tx.Mode) JobConfig {
	j.Mode = mode
	return j
}

// NewJobConfig builds a JobConfig directly. It is meant for callers that do not load YAML, such as tests.
func NewJobConfig(name, kind string, mode tx.Mode, batchSize, sourceFetch, destinationFetch int, encoding string) JobConfig {
	return JobConfig{
		Name:                 name,
		Kind:                 kind,
		Mode:                 mode,
		SourceFetchSize:      sourceFetch,
		DestinationFetchSize: destinationFetch,
		Encoding:             encoding,
		BufferSize:           4096,
		batchSize:            batchSize,
	}
}

// JobConfig derives the configuration of one declared job from the global settings and the job's
// overrides.
func (c *Config) JobConfig(def JobDefinition) (JobConfig, error) {
	m := c.Migrator
	modeName := m.Exec.TransactionMode
	if def.TransactionMode != "" {
		modeName = def.TransactionMode
	}
	mode, err := tx.ParseMode(modeName)
	if err != nil {
		return JobConfig{}, fmt.Errorf("job '%s': %w", def.Name, err)
	}

	jc := JobConfig{
		Name:       def.Name,
		Kind:       def.Kind,
		Mode:       mode,
		Encoding:   m.File.Encoding,
		BufferSize: m.File.Buffer,
		batchSize:  m.Exec.BatchChunkSize,
	}
	if def.BatchChunkSize > 0 {
		jc.batchSize = def.BatchChunkSize
	}

	switch def.Kind {
	case KindReconciliation:
		jc.SourceFetchSize = m.Check.SelectSourceChunkSize
		jc.DestinationFetchSize = m.Check.SelectDestinationChunkSize
	default:
		jc.SourceFetchSize = m.Exec.SelectChunkSize
	}
	if def.SelectChunkSize > 0 {
		jc.SourceFetchSize = def.SelectChunkSize
	}
	return jc, nil
}

// Job returns the declared job with the given name.
func (c *Config) Job(name string) (JobDefinition, bool) {
	for _, j := range c.Migrator.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobDefinition{}, false
}
