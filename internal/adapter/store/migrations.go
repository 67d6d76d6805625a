package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyFingerprint   = []byte("embedding_fingerprint")
	keyReady         = []byte("ready")
)

// Fingerprint identifies the embedding space an index was built in.
// Vectors from different fingerprints must never be mixed.
type Fingerprint struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// SchemaInfo stores schema version and the embedding fingerprint.
type SchemaInfo struct {
	Version     int          `json:"version"`
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltVectorStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		if data := b.Get(keySchemaVersion); data != nil {
			if err := json.Unmarshal(data, &info.Version); err != nil {
				info.Version = 0
			}
		}

		if data := b.Get(keyFingerprint); data != nil {
			var fp Fingerprint
			if err := json.Unmarshal(data, &fp); err == nil {
				info.Fingerprint = &fp
			}
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltVectorStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}

		if info.Fingerprint == nil {
			return b.Delete(keyFingerprint)
		}
		fpData, err := json.Marshal(info.Fingerprint)
		if err != nil {
			return err
		}
		return b.Put(keyFingerprint, fpData)
	})
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration checks if migration or rebuild is needed for the given
// embedding fingerprint.
func (s *BoltVectorStore) CheckMigration(fp Fingerprint) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.Fingerprint != nil && *info.Fingerprint != fp {
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding changed from %s/%d to %s/%d",
			info.Fingerprint.Model, info.Fingerprint.Dimension, fp.Model, fp.Dimension)
	}

	return result, nil
}

// Migrate brings the schema to the current version and records fp.
func (s *BoltVectorStore) Migrate(fp Fingerprint) error {
	return s.SetSchemaInfo(&SchemaInfo{
		Version:     CurrentSchemaVersion,
		Fingerprint: &fp,
	})
}

// Clear removes all vectors and the ready flag (for rebuild).
// Schema information is kept.
func (s *BoltVectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketVectors); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(bucketVectors); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Delete(keyReady); err != nil {
			return err
		}
		return meta.Delete(keyFingerprint)
	})
	if err != nil {
		return err
	}

	return s.cache.Clear(ctx)
}

func (s *BoltVectorStore) readFlag(key []byte) (bool, error) {
	var set bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(key)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &set)
	})
	return set, err
}

func (s *BoltVectorStore) writeFlag(key []byte, v bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(key, data)
	})
}
