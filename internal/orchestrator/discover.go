package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/catalogconv/internal/checkpoint"
	"github.com/dshills/catalogconv/internal/config"
	"github.com/dshills/catalogconv/internal/writer"
)

var (
	// ErrInputDirMissing is returned when the input directory does not exist
	ErrInputDirMissing = errors.New("input directory does not exist")
	// ErrNoInputFiles is returned when discovery finds nothing to convert
	ErrNoInputFiles = errors.New("no eligible input files")
	// ErrOutputNameClash is returned when two datasets would write the same
	// output files
	ErrOutputNameClash = errors.New("output name clash")
)

// Reserved is a directory a run writes into and the file name patterns it
// owns there
type Reserved struct {
	Dir      string
	Patterns []string
}

// Discover walks the input directory and returns the eligible files,
// sorted. Hidden directories and reserved directories below the input root
// are not entered. When a reserved directory is the input root itself, only
// the files matching its patterns are left out.
func Discover(cfg config.InputConfig, reserved ...Reserved) ([]string, error) {
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputDirMissing, cfg.Dir)
		}
		return nil, fmt.Errorf("stat input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputDirMissing, cfg.Dir)
	}

	owned := make(map[string][]string, len(reserved))
	for _, r := range reserved {
		if r.Dir == "" {
			continue
		}
		if abs, err := filepath.Abs(r.Dir); err == nil {
			owned[abs] = append(owned[abs], r.Patterns...)
		}
	}

	var files []string
	err = filepath.WalkDir(cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == cfg.Dir {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil {
				if _, ok := owned[abs]; ok {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if abs, err := filepath.Abs(filepath.Dir(path)); err == nil && matchAny(owned[abs], d.Name()) {
			return nil
		}
		if Eligible(cfg, d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input dir: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, cfg.Dir)
	}
	sort.Strings(files)
	return files, nil
}

// Eligible reports whether a base file name matches an include pattern and
// no exclude pattern
func Eligible(cfg config.InputConfig, name string) bool {
	if matchAny(cfg.Exclude, name) {
		return false
	}
	if len(cfg.Include) == 0 {
		return strings.EqualFold(filepath.Ext(name), ".json")
	}
	return matchAny(cfg.Include, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// reservedDirs lists what a run writes under cfg's output and checkpoint
// directories
func reservedDirs(cfg config.Config) []Reserved {
	return []Reserved{
		{Dir: cfg.Output.Dir, Patterns: []string{ReportPrefix + "*.json", "*" + writer.Ext}},
		{Dir: cfg.Checkpoint.Dir, Patterns: []string{"*" + checkpoint.JSONSuffix, checkpoint.SQLiteFile + "*"}},
	}
}

// checkOutputNames fails when two inputs, or an input and the combined
// dataset, map to output files of the same name. Names compare
// case-insensitively.
func checkOutputNames(cfg config.Config, files []string) error {
	names := make(map[string]string, len(files)+1)
	// basename -> owner of a name that looks like one of its shards
	shardLike := make(map[string]string)
	claim := func(base, owner string) error {
		key := strings.ToLower(base)
		parent, isShard := writer.ShardParent(key)
		clash, ok := names[key]
		if !ok {
			clash, ok = shardLike[key]
		}
		if !ok && isShard {
			clash, ok = names[parent]
		}
		if ok {
			return fmt.Errorf("%w: %s and %s both write %q", ErrOutputNameClash, clash, owner, base)
		}
		names[key] = owner
		if isShard {
			shardLike[parent] = owner
		}
		return nil
	}

	if cfg.Output.Combined {
		if err := claim(cfg.Output.CombinedName, "the combined output"); err != nil {
			return err
		}
	}
	for _, path := range files {
		rel, err := filepath.Rel(cfg.Input.Dir, path)
		if err != nil {
			rel = path
		}
		if err := claim(writer.Basename(cfg.Input.Dir, path), filepath.ToSlash(rel)); err != nil {
			return err
		}
	}
	return nil
}
