// Package export writes point-in-time JSON snapshots of every note, with its
// backlinks, to object storage.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/linknotes/internal/crypto"
	"github.com/kuitang/linknotes/internal/errs"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/obs"
	"github.com/kuitang/linknotes/internal/s3client"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

const (
	contentTypeJSON   = "application/json"
	contentTypeSealed = "application/octet-stream"
	sealedSuffix      = ".json.sealed"
	plainSuffix       = ".json"
)

// Snapshot is the exported document.
type Snapshot struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exported_at"`
	Notes      []notes.Note `json:"notes"`
}

// Result describes a written snapshot.
type Result struct {
	Key       string `json:"key"`
	NoteCount int    `json:"note_count"`
	Bytes     int    `json:"bytes"`
	Sealed    bool   `json:"sealed"`
}

// Lister reads every note. *notes.Service satisfies it.
type Lister interface {
	List(ctx context.Context) (*notes.NoteListResult, error)
}

// ObjectStore is the subset of *s3client.Client the exporter needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]s3client.ObjectInfo, error)
}

// Exporter writes snapshots under a key prefix.
type Exporter struct {
	notes   Lister
	objects ObjectStore
	prefix  string
	sealKey []byte
	now     func() time.Time
}

// New creates an Exporter. When masterKey is non-nil, snapshots are sealed
// with AES-GCM under a key derived from it and the object key is bound as
// additional data.
func New(lister Lister, objects ObjectStore, prefix string, masterKey []byte) *Exporter {
	e := &Exporter{
		notes:   lister,
		objects: objects,
		prefix:  strings.Trim(prefix, "/"),
		now:     time.Now,
	}
	if masterKey != nil {
		e.sealKey = crypto.DeriveKey(masterKey, crypto.PurposeExport, 1)
	}
	return e
}

func (e *Exporter) objectKey(at time.Time) string {
	name := at.UTC().Format("20060102T150405.000Z") + "-" + uuid.NewString()
	if e.sealKey != nil {
		name += sealedSuffix
	} else {
		name += plainSuffix
	}
	if e.prefix == "" {
		return name
	}
	return e.prefix + "/" + name
}

// Export reads all notes in one consistent view and writes them as a snapshot.
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	logger := obs.From(ctx).With("pkg", "export")

	list, err := e.notes.List(ctx)
	if err != nil {
		return nil, err
	}

	at := e.now().UTC().Truncate(time.Millisecond)
	snap := Snapshot{Version: SnapshotVersion, ExportedAt: at, Notes: list.Notes}
	if snap.Notes == nil {
		snap.Notes = []notes.Note{}
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encode snapshot", err)
	}

	key := e.objectKey(at)
	contentType := contentTypeJSON
	if e.sealKey != nil {
		body, err = crypto.Seal(e.sealKey, body, []byte(key))
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "seal snapshot", err)
		}
		contentType = contentTypeSealed
	}

	if err := e.objects.PutObject(ctx, key, body, contentType); err != nil {
		logger.Error("export_failed", "key", key, "error", err)
		return nil, errs.Wrap(errs.Unavailable, "object storage unavailable", err)
	}

	res := &Result{Key: key, NoteCount: len(snap.Notes), Bytes: len(body), Sealed: e.sealKey != nil}
	logger.Info("export_written", "key", key, "notes", res.NoteCount, "bytes", res.Bytes, "sealed", res.Sealed)
	return res, nil
}

// Load reads a snapshot back, opening it when it was sealed.
func (e *Exporter) Load(ctx context.Context, key string) (*Snapshot, error) {
	body, err := e.objects.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, s3client.ErrObjectNotFound) {
			return nil, errs.Wrap(errs.NotFound, "export not found", err)
		}
		return nil, errs.Wrap(errs.Unavailable, "object storage unavailable", err)
	}

	if strings.HasSuffix(key, sealedSuffix) {
		if e.sealKey == nil {
			return nil, errs.New(errs.InvalidArgument, "export is sealed and no key is configured")
		}
		body, err = crypto.Open(e.sealKey, body, []byte(key))
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "export cannot be opened with the configured key", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, errs.Wrap(errs.Internal, "decode snapshot", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, errs.Newf(errs.InvalidArgument, "unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}

// List returns the snapshots under the prefix, oldest first.
func (e *Exporter) List(ctx context.Context) ([]s3client.ObjectInfo, error) {
	prefix := e.prefix
	if prefix != "" {
		prefix += "/"
	}
	objs, err := e.objects.ListObjects(ctx, prefix)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "object storage unavailable", err)
	}
	out := objs[:0]
	for _, o := range objs {
		if strings.HasSuffix(o.Key, plainSuffix) || strings.HasSuffix(o.Key, sealedSuffix) {
			out = append(out, o)
		}
	}
	return out, nil
}
