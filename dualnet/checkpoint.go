package dual

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// weightEntry is one learnable's serialized form: its graph name (stable
// across New() calls building an identically-shaped graph) plus its
// current tensor shape and backing data.
type weightEntry struct {
	Name  string
	Shape []int
	Data  []float32
}

// Save serializes every learnable to path, writing to a temp file and
// renaming into place so a reader observing a newer mtime always sees a
// complete file (§4.1's checkpoint I/O contract).
func (n *Network) Save(path string) error {
	entries := make([]weightEntry, len(n.learnables))
	for i, l := range n.learnables {
		data, ok := l.Value().Data().([]float32)
		if !ok {
			return fmt.Errorf("dual: learnable %s has unexpected value type", l.Name())
		}
		entries[i] = weightEntry{Name: l.Name(), Shape: []int(l.Shape()), Data: append([]float32(nil), data...)}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "dual: create checkpoint temp file")
	}
	if err := gob.NewEncoder(f).Encode(entries); err != nil {
		f.Close()
		return errors.Wrap(err, "dual: encode checkpoint")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "dual: close checkpoint temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "dual: rename checkpoint into place")
}

// SaveTimestamped copies the live checkpoint at path to a sibling
// timestamped path, for the trainer's periodic historical-record feature.
func SaveTimestamped(path string, now time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "dual: read checkpoint for historical copy")
	}
	hist := filepath.Join(filepath.Dir(path),
		fmt.Sprintf("%s.%s", filepath.Base(path), now.UTC().Format("20060102T150405Z")))
	return errors.Wrap(os.WriteFile(hist, data, 0o644), "dual: write historical checkpoint copy")
}

// Load reads a checkpoint written by Save and binds the weights into this
// network's graph by learnable name. Shapes must match the network's own
// configuration.
func (n *Network) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "dual: open checkpoint")
	}
	defer f.Close()

	var entries []weightEntry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return errors.Wrap(err, "dual: decode checkpoint")
	}

	byName := make(map[string]weightEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	for _, l := range n.learnables {
		e, ok := byName[l.Name()]
		if !ok {
			return fmt.Errorf("dual: checkpoint missing learnable %q", l.Name())
		}
		t := tensor.New(tensor.WithShape(e.Shape...), tensor.WithBacking(e.Data))
		if err := G.Let(l, t); err != nil {
			return errors.Wrapf(err, "dual: bind loaded weight %q", l.Name())
		}
	}
	return nil
}

// ModTime reports the checkpoint file's last-write time, used by the
// self-play driver's live-reload poll.
func ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
