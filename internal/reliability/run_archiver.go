package reliability

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mcvqe/internal/events"
)

const (
	defaultPrefix   = "runs"
	objectExtension = ".msgpack"

	// minArchivesToKeep survive rotation regardless of age
	minArchivesToKeep = 3
)

// Emitter publishes typed events.
type Emitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// ArchiveInfo describes one archived run payload.
type ArchiveInfo struct {
	Key          string    `json:"key"`
	RunID        string    `json:"run_id"`
	LastModified time.Time `json:"last_modified"`
	SizeBytes    int64     `json:"size_bytes"`
}

// RunArchiver copies finished run payloads (msgpack) to object storage.
type RunArchiver struct {
	store   ObjectStore
	bucket  string
	prefix  string
	emitter Emitter
	log     zerolog.Logger
}

// NewRunArchiver creates an archiver writing under prefix. emitter may be nil.
func NewRunArchiver(store ObjectStore, bucket, prefix string, emitter Emitter, log zerolog.Logger) *RunArchiver {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RunArchiver{
		store:   store,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		emitter: emitter,
		log:     log.With().Str("service", "run_archiver").Logger(),
	}
}

// ObjectKey returns the object key for a run id: <prefix>/<id>.msgpack.
func (a *RunArchiver) ObjectKey(id string) string {
	return path.Join(a.prefix, id+objectExtension)
}

// Archive uploads payload for run id.
func (a *RunArchiver) Archive(ctx context.Context, id string, payload []byte) error {
	if id == "" {
		return fmt.Errorf("archive: empty run id")
	}
	key := a.ObjectKey(id)
	start := time.Now()

	if err := a.store.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return fmt.Errorf("failed to archive run %s: %w", id, err)
	}

	a.log.Info().
		Str("run_id", id).
		Str("key", key).
		Int("bytes", len(payload)).
		Dur("duration_ms", time.Since(start)).
		Msg("Run archived")

	if a.emitter != nil {
		a.emitter.EmitTyped(events.RunArchived, "reliability", &events.RunArchivedData{
			RunID:  id,
			Bucket: a.bucket,
			Key:    key,
			Bytes:  len(payload),
		})
	}
	return nil
}

// ListArchives lists archived runs, newest first.
func (a *RunArchiver) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		id, ok := a.runID(*obj.Key)
		if !ok {
			continue
		}

		info := ArchiveInfo{Key: *obj.Key, RunID: id}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		if obj.Size != nil {
			info.SizeBytes = *obj.Size
		}
		archives = append(archives, info)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].LastModified.After(archives[j].LastModified)
	})
	return archives, nil
}

// RotateArchives deletes archives older than retentionDays, always keeping
// the newest few. retentionDays <= 0 keeps everything. Returns the number
// of deleted objects.
func (a *RunArchiver) RotateArchives(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	archives, err := a.ListArchives(ctx)
	if err != nil {
		return 0, err
	}
	if len(archives) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, archive := range archives[minArchivesToKeep:] {
		if !archive.LastModified.Before(cutoff) {
			continue
		}
		if err := a.store.Delete(ctx, archive.Key); err != nil {
			a.log.Error().Err(err).Str("key", archive.Key).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	a.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Archive rotation completed")
	return deleted, nil
}

func (a *RunArchiver) runID(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, a.prefix+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, objectExtension)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
