package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

const dateDirLayout = "2006-01-02"

// Storage is the raw data lake on local disk, laid out as
// <dir>/<YYYY-MM-DD>/<channel>/<file>.
type Storage struct {
	basePath string
	logger   *slog.Logger
}

func New(basePath string, logger *slog.Logger) (*Storage, error) {
	if basePath == "" {
		basePath = "."
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve lake root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{basePath: abs, logger: logger}, nil
}

// Walk calls fn for every file under dir in date, channel and name order.
// Directories whose name is not a date are skipped with a warning. A missing
// dir yields no entries.
func (s *Storage) Walk(ctx context.Context, dir string, fn func(domain.LakeEntry) error) error {
	root, err := s.resolve(dir)
	if err != nil {
		return err
	}

	dates, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("lake_directory_missing", "dir", dir)
			return nil
		}
		return fmt.Errorf("read lake dir: %w", err)
	}

	for _, dateEntry := range dates {
		if !dateEntry.IsDir() {
			continue
		}
		day, err := time.Parse(dateDirLayout, dateEntry.Name())
		if err != nil {
			s.logger.Warn("lake_directory_skipped", "dir", filepath.Join(dir, dateEntry.Name()), "reason", "not a date")
			continue
		}

		channels, err := os.ReadDir(filepath.Join(root, dateEntry.Name()))
		if err != nil {
			return fmt.Errorf("read date dir: %w", err)
		}
		for _, channelEntry := range channels {
			if !channelEntry.IsDir() {
				continue
			}
			if err := s.walkChannel(ctx, dir, root, day, dateEntry.Name(), channelEntry.Name(), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Storage) walkChannel(ctx context.Context, dir, root string, day time.Time, dateName, channel string, fn func(domain.LakeEntry) error) error {
	files, err := os.ReadDir(filepath.Join(root, dateName, channel))
	if err != nil {
		return fmt.Errorf("read channel dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := domain.LakeEntry{
			Path:     filepath.Join(root, dateName, channel, f.Name()),
			Location: filepath.ToSlash(filepath.Join(dir, dateName, channel, f.Name())),
			Date:     day,
			Channel:  channel,
			Name:     f.Name(),
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Read(_ context.Context, entry domain.LakeEntry) ([]byte, error) {
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Locate resolves a lake-relative location to an existing regular file.
func (s *Storage) Locate(_ context.Context, location string) (string, error) {
	path, err := s.resolve(location)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.WrapError(domain.ErrMissingArtifact, "locate artifact", err)
		}
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", domain.WrapError(domain.ErrMissingArtifact, "locate artifact", fmt.Errorf("%s is not a regular file", location))
	}
	return path, nil
}

// resolve joins a lake-relative path to the base, refusing paths that escape it.
func (s *Storage) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve lake path", fmt.Errorf("%q escapes the lake root", rel))
	}
	return filepath.Join(s.basePath, cleaned), nil
}
