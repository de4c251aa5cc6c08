package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// diskMeta is the metadata stored next to a cached feed body.
type diskMeta struct {
	GroupID   string    `json:"group_id"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Disk is a FeedCache persisted under a base directory, one subdirectory
// per group (named by a hash of the group id), holding body.ics and
// meta.json. Survives process restarts on single-node deployments.
type Disk struct {
	dir string
}

func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Get(_ context.Context, groupID string) (Entry, bool, error) {
	path := d.pathFor(groupID)

	data, err := os.ReadFile(filepath.Join(path, "meta.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var meta diskMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		// A corrupt meta file is treated as a miss; the next Put rewrites it.
		return Entry{}, false, nil
	}

	body, err := os.ReadFile(filepath.Join(path, "body.ics"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	return Entry{Body: body, Hash: meta.Hash}, true, nil
}

func (d *Disk) Put(_ context.Context, groupID string, e Entry) error {
	path := d.pathFor(groupID)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return err
	}

	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(path, "body.ics"), e.Body, 0o600); err != nil {
		return err
	}

	meta := diskMeta{GroupID: groupID, Hash: e.Hash, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, "meta.json"), data, 0o600)
}

func (d *Disk) pathFor(groupID string) string {
	sum := sha256.Sum256([]byte(groupID))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:8]))
}
