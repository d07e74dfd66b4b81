package storage

import (
	"path/filepath"
	"strings"
)

// PathConfig holds configuration for storage path generation.
type PathConfig struct {
	// BasePath is the root directory for blob storage.
	BasePath string

	// ShardLevels is the number of directory levels for sharding.
	// Default: 2 (e.g., /d0/c9/65f0...c9d0)
	ShardLevels int

	// ShardWidth is the number of characters per shard level.
	// Default: 2
	ShardWidth int
}

// DefaultPathConfig returns the default path configuration.
func DefaultPathConfig(basePath string) PathConfig {
	return PathConfig{
		BasePath:    basePath,
		ShardLevels: 2,
		ShardWidth:  2,
	}
}

// ValidKey reports whether key is safe to use as a file name.
// Keys are lowercase hex blob ids in practice.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.HasPrefix(key, ".")
}

// ComputePath generates the storage path for a key.
// Blob ids start with a timestamp, so shards are taken from the end of
// the key where the random bytes live.
//
// Example with default config (2 levels, 2 chars each):
//
//	key: "65f0a1b2c3d4e5f6a7b8c9d0"
//	basePath: "/data"
//	result: "/data/d0/c9/65f0a1b2c3d4e5f6a7b8c9d0"
func ComputePath(config PathConfig, key string) string {
	dirs := GetShardDirs(config, key)

	components := make([]string, 0, len(dirs)+2)
	components = append(components, config.BasePath)
	components = append(components, dirs...)
	components = append(components, key)

	return filepath.Join(components...)
}

// ComputeDefaultPath generates the storage path using default configuration.
func ComputeDefaultPath(basePath, key string) string {
	return ComputePath(DefaultPathConfig(basePath), key)
}

// GetShardDirs returns the shard directory components for a key.
//
// Example:
//
//	key: "...c9d0"
//	result: ["d0", "c9"]
func GetShardDirs(config PathConfig, key string) []string {
	minLength := config.ShardLevels * config.ShardWidth
	if config.ShardLevels <= 0 || len(key) < minLength {
		return nil
	}

	dirs := make([]string, config.ShardLevels)
	end := len(key)
	for i := 0; i < config.ShardLevels; i++ {
		dirs[i] = key[end-config.ShardWidth : end]
		end -= config.ShardWidth
	}

	return dirs
}

// GetShardPath returns the directory path for a key (without the filename).
func GetShardPath(config PathConfig, key string) string {
	dirs := GetShardDirs(config, key)
	if dirs == nil {
		return config.BasePath
	}

	components := make([]string, 0, len(dirs)+1)
	components = append(components, config.BasePath)
	components = append(components, dirs...)

	return filepath.Join(components...)
}
