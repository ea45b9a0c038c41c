package jobs

import (
	"context"

	"github.com/botforge/telegram-bot-factory/internal/infrastructure/handlercache"
)

// directorySyncer is the subset of handlercache.Cache this job depends on.
type directorySyncer interface {
	SyncDirectory(ctx context.Context) error
}

// SyncArtifactDirectory runs C3's periodic mirror synchronisation: it evicts
// cached handlers whose mirrored file disappeared and eagerly loads files the
// artifact store wrote since the last pass.
type SyncArtifactDirectory struct {
	cache directorySyncer
}

// NewSyncArtifactDirectory builds the job.
func NewSyncArtifactDirectory(cache *handlercache.Cache) *SyncArtifactDirectory {
	return &SyncArtifactDirectory{cache: cache}
}

func (j *SyncArtifactDirectory) Name() string { return "sync_artifact_directory" }

func (j *SyncArtifactDirectory) Description() string {
	return "reconciles the in-memory handler cache against the local artifact mirror"
}

func (j *SyncArtifactDirectory) Run(ctx context.Context) error {
	return j.cache.SyncDirectory(ctx)
}
