// Package version implements the version store of §4.2: a persistent
// record of upstream tag metadata per tracked module repository, supporting
// marking tags as defective and computing the latest non-defective tag per
// repository.
package version

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
	"github.com/exorde-labs/swarm-orchestrator/pkg/swarmerr"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// LatestTag is one (repository_path, tag_name) pair returned by
// GetLatestValidTagsForAllRepos.
type LatestTag struct {
	RepositoryPath string
	TagName        string
}

// Store is the version store's operations (§4.2).
type Store interface {
	Setup() error
	EnsureTracked(repositoryPaths []string) error
	Sync(ctx context.Context, useCache bool) error
	MarkTagAs(repositoryPath, tagName, mark string) error
	DeleteMarkFromTag(repositoryPath, tagName, mark string) error
	GetLatestValidTagsForAllRepos() ([]LatestTag, error)
	Close() error
}

// GormStore is the default Store, backed by gorm against whichever SQL
// driver static_cluster_parameters.db.driver names (sqlite or postgres).
type GormStore struct {
	db             *gorm.DB
	upstream       UpstreamTagSource
	cacheThreshold time.Duration
}

// NewGormStore wraps an already-open gorm connection and wires the given
// upstream tag source. cacheThreshold is the §4.2 "last_online_retrieval
// younger than configurable threshold" window (default 10 minutes, per
// §6's github_cache_threshold_minutes).
func NewGormStore(db *gorm.DB, upstream UpstreamTagSource, cacheThreshold time.Duration) *GormStore {
	return &GormStore{
		db:             db,
		upstream:       upstream,
		cacheThreshold: cacheThreshold,
	}
}

// Setup idempotently creates the schema (§4.2).
func (s *GormStore) Setup() error {
	if err := s.db.AutoMigrate(&Repository{}, &Tag{}, &Mark{}); err != nil {
		return fmt.Errorf("%w: migrating version store schema: %v", swarmerr.ErrPersistence, err)
	}
	return nil
}

// EnsureTracked inserts a Repository row for every path not already
// tracked. Sync only operates over tracked repositories.
func (s *GormStore) EnsureTracked(repositoryPaths []string) error {
	for _, path := range repositoryPaths {
		repo := Repository{Path: path}
		if err := s.db.Where(Repository{Path: path}).FirstOrCreate(&repo).Error; err != nil {
			return fmt.Errorf("%w: tracking repository %s: %v", swarmerr.ErrPersistence, path, err)
		}
	}

	var tracked int64
	if err := s.db.Model(&Repository{}).Count(&tracked).Error; err != nil {
		return fmt.Errorf("%w: counting tracked repositories: %v", swarmerr.ErrPersistence, err)
	}
	metrics.TrackedRepositories.Set(float64(tracked))
	return nil
}

// Sync refreshes tags for every tracked repository. A partial upstream
// failure for one repository never aborts sync of the others (§4.2
// failure semantics); the repository simply retains its prior tag set.
func (s *GormStore) Sync(ctx context.Context, useCache bool) error {
	timer := prometheus.NewTimer(metrics.VersionSyncDuration)
	defer timer.ObserveDuration()

	var repos []Repository
	if err := s.db.Find(&repos).Error; err != nil {
		return fmt.Errorf("%w: listing tracked repositories: %v", swarmerr.ErrPersistence, err)
	}

	for _, repo := range repos {
		if useCache && time.Since(repo.LastOnlineRetrieval) < s.cacheThreshold {
			continue
		}
		if err := s.syncRepository(ctx, repo); err != nil {
			metrics.VersionSyncFailuresTotal.WithLabelValues(repo.Path).Inc()
			log.WithComponent("version").Warn().Err(err).Str("repository", repo.Path).Msg("failed to sync repository, keeping prior tags")
		}
	}
	return nil
}

func (s *GormStore) syncRepository(ctx context.Context, repo Repository) error {
	upstreamTags, err := s.upstream.FetchTags(ctx, repo.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", swarmerr.ErrUpstreamUnavailable, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, ut := range upstreamTags {
			if isPrerelease(ut.Name) {
				continue
			}
			tag := Tag{
				RepositoryID: repo.ID,
				Name:         ut.Name,
				ZipballURL:   ut.ZipballURL,
				TarballURL:   ut.TarballURL,
				CommitURL:    ut.Commit.URL,
			}
			// insert-or-ignore: never delete tags on sync, never overwrite
			// an existing tag row either.
			if err := tx.Where(Tag{RepositoryID: repo.ID, Name: ut.Name}).FirstOrCreate(&tag).Error; err != nil {
				return fmt.Errorf("upserting tag %s/%s: %w", repo.Path, ut.Name, err)
			}
		}

		repo.LastOnlineRetrieval = time.Now()
		if err := tx.Save(&repo).Error; err != nil {
			return fmt.Errorf("refreshing repository timestamp for %s: %w", repo.Path, err)
		}
		return nil
	})
}

// MarkTagAs marks a tag with the given mark, idempotently.
func (s *GormStore) MarkTagAs(repositoryPath, tagName, mark string) error {
	tag, err := s.findTag(repositoryPath, tagName)
	if err != nil {
		return err
	}
	m := Mark{TagID: tag.ID, Mark: mark}
	if err := s.db.Where(Mark{TagID: tag.ID, Mark: mark}).FirstOrCreate(&m).Error; err != nil {
		return fmt.Errorf("%w: marking %s/%s as %s: %v", swarmerr.ErrPersistence, repositoryPath, tagName, mark, err)
	}
	return nil
}

// DeleteMarkFromTag removes that specific mark row.
func (s *GormStore) DeleteMarkFromTag(repositoryPath, tagName, mark string) error {
	tag, err := s.findTag(repositoryPath, tagName)
	if err != nil {
		return err
	}
	if err := s.db.Where(Mark{TagID: tag.ID, Mark: mark}).Delete(&Mark{}).Error; err != nil {
		return fmt.Errorf("%w: deleting mark %s from %s/%s: %v", swarmerr.ErrPersistence, mark, repositoryPath, tagName, err)
	}
	return nil
}

func (s *GormStore) findTag(repositoryPath, tagName string) (Tag, error) {
	var repo Repository
	if err := s.db.Where(Repository{Path: repositoryPath}).First(&repo).Error; err != nil {
		return Tag{}, fmt.Errorf("%w: repository %s not tracked: %v", swarmerr.ErrPersistence, repositoryPath, err)
	}
	var tag Tag
	if err := s.db.Where(Tag{RepositoryID: repo.ID, Name: tagName}).First(&tag).Error; err != nil {
		return Tag{}, fmt.Errorf("%w: tag %s/%s not found: %v", swarmerr.ErrPersistence, repositoryPath, tagName, err)
	}
	return tag, nil
}

// GetLatestValidTagsForAllRepos returns, for each tracked repository, its
// maximum tag under version ordering among tags carrying no DEFECTIVE mark.
// Repositories with zero non-defective tags are omitted (§4.2, §8 property
// 3).
func (s *GormStore) GetLatestValidTagsForAllRepos() ([]LatestTag, error) {
	var repos []Repository
	if err := s.db.Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("%w: listing repositories: %v", swarmerr.ErrPersistence, err)
	}

	var result []LatestTag
	for _, repo := range repos {
		var tags []Tag
		if err := s.db.Where(Tag{RepositoryID: repo.ID}).Find(&tags).Error; err != nil {
			return nil, fmt.Errorf("%w: listing tags for %s: %v", swarmerr.ErrPersistence, repo.Path, err)
		}
		if len(tags) == 0 {
			continue
		}

		var defectiveTagIDs map[uint]bool
		{
			var marks []Mark
			ids := make([]uint, len(tags))
			for i, t := range tags {
				ids[i] = t.ID
			}
			if err := s.db.Where("tag_id IN ? AND mark = ?", ids, MarkDefective).Find(&marks).Error; err != nil {
				return nil, fmt.Errorf("%w: listing marks: %v", swarmerr.ErrPersistence, err)
			}
			defectiveTagIDs = make(map[uint]bool, len(marks))
			for _, m := range marks {
				defectiveTagIDs[m.TagID] = true
			}
		}

		best, ok := latestNonDefective(tags, defectiveTagIDs)
		if !ok {
			continue
		}
		result = append(result, LatestTag{RepositoryPath: repo.Path, TagName: best})
	}
	return result, nil
}

// Close releases the underlying SQL connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: getting sql.DB handle: %v", swarmerr.ErrPersistence, err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("%w: closing version store: %v", swarmerr.ErrPersistence, err)
	}
	return nil
}

// latestNonDefective selects the maximum tag under version ordering among
// non-defective tags, skipping tags whose name doesn't parse as a version.
func latestNonDefective(tags []Tag, defective map[uint]bool) (string, bool) {
	var bestName string
	var best *semver.Version
	for _, t := range tags {
		if defective[t.ID] {
			continue
		}
		v, err := semver.NewVersion(t.Name)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestName = t.Name
		}
	}
	return bestName, best != nil
}

// isPrerelease reports whether a tag name carries a pre-release segment
// under standard version grammar (§4.2 sync filter, §8 property 9). A tag
// that fails to parse as a version is treated as not a pre-release, so Sync
// still stores it; latestNonDefective skips it when picking the latest tag.
func isPrerelease(tagName string) bool {
	v, err := semver.NewVersion(tagName)
	if err != nil {
		return false
	}
	return v.Prerelease() != ""
}
