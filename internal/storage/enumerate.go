package storage

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ListDirJSON enumerates the .json files in a record directory's
// two-level fan-out (shard subdirectories plus loose files). Missing or
// unreadable directories yield nil, never an error.
func ListDirJSON(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var (
		mu    sync.Mutex
		files []string
	)
	var g errgroup.Group
	for _, entry := range entries {
		if !entry.IsDir() {
			if filepath.Ext(entry.Name()) == ".json" {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			subEntries, err := os.ReadDir(sub)
			if err != nil {
				return nil //nolint:nilerr // unreadable shards degrade to empty
			}
			var local []string
			for _, se := range subEntries {
				if !se.IsDir() && filepath.Ext(se.Name()) == ".json" {
					local = append(local, filepath.Join(sub, se.Name()))
				}
			}
			if len(local) > 0 {
				mu.Lock()
				files = append(files, local...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return files
}

// ListAllTracked enumerates every record file across the four record
// directories, in parallel.
func ListAllTracked(root string) []string {
	results := make([][]string, len(RecordDirs))
	var g errgroup.Group
	for i, dir := range RecordDirs {
		g.Go(func() error {
			results[i] = ListDirJSON(filepath.Join(root, dir))
			return nil
		})
	}
	_ = g.Wait()

	var all []string
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// ListPartFiles returns the part files for one message id, sorted by
// name so parts fold in write order.
func ListPartFiles(root, messageID string) []string {
	dir := filepath.Join(root, PartDir, messageID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// os.ReadDir already sorts by name
	return files
}
