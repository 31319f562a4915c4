package production

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/comalice/corofsm/trace"
)

// ErrTraceNotFound is returned when loading a trace that was never saved.
var ErrTraceNotFound = errors.New("trace not found")

// Trace is a named, saved sequence of hops.
type Trace struct {
	Name    string      `json:"name" yaml:"name"`
	SavedAt time.Time   `json:"saved_at" yaml:"saved_at"`
	Hops    []trace.Hop `json:"hops" yaml:"hops"`
}

// Persister stores traces.
type Persister interface {
	Save(ctx context.Context, tr Trace) error
	Load(ctx context.Context, name string) (Trace, error)
}

var (
	_ Persister = (*JSONPersister)(nil)
	_ Persister = (*YAMLPersister)(nil)
)

// JSONPersister is a file-based persister using JSON serialization.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister, ensuring the directory exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", dir)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(ctx context.Context, tr Trace) error {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json marshal")
	}
	return writeTrace(ctx, filepath.Join(p.dir, tr.Name+".json"), data)
}

func (p *JSONPersister) Load(ctx context.Context, name string) (Trace, error) {
	data, err := readTrace(ctx, filepath.Join(p.dir, name+".json"), name)
	if err != nil {
		return Trace{}, err
	}
	var tr Trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return Trace{}, errors.Wrap(err, "json unmarshal")
	}
	tr.Name = name
	return tr, nil
}

// YAMLPersister is a file-based persister using YAML serialization.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", dir)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, tr Trace) error {
	data, err := yaml.Marshal(tr)
	if err != nil {
		return errors.Wrap(err, "yaml marshal")
	}
	return writeTrace(ctx, filepath.Join(p.dir, tr.Name+".yaml"), data)
}

func (p *YAMLPersister) Load(ctx context.Context, name string) (Trace, error) {
	data, err := readTrace(ctx, filepath.Join(p.dir, name+".yaml"), name)
	if err != nil {
		return Trace{}, err
	}
	var tr Trace
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return Trace{}, errors.Wrap(err, "yaml unmarshal")
	}
	tr.Name = name
	return tr, nil
}

func writeTrace(ctx context.Context, fn string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", fn)
	}
	return nil
}

func readTrace(ctx context.Context, fn, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrTraceNotFound, "trace %q", name)
		}
		return nil, errors.Wrapf(err, "read %s", fn)
	}
	return data, nil
}
