package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lakeFake struct {
	files   map[string][]domain.LakeEntry
	content map[string][]byte
	walkErr error
}

func newLakeFake() *lakeFake {
	return &lakeFake{
		files:   make(map[string][]domain.LakeEntry),
		content: make(map[string][]byte),
	}
}

func (f *lakeFake) add(dir, date, channel, name string, body []byte) {
	day, _ := time.Parse("2006-01-02", date)
	location := path.Join(dir, date, channel, name)
	f.files[dir] = append(f.files[dir], domain.LakeEntry{
		Path:     "/lake/" + location,
		Location: location,
		Date:     day,
		Channel:  channel,
		Name:     name,
	})
	f.content[location] = body
}

func (f *lakeFake) Walk(_ context.Context, dir string, fn func(domain.LakeEntry) error) error {
	if f.walkErr != nil {
		return f.walkErr
	}
	for _, entry := range f.files[dir] {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (f *lakeFake) Read(_ context.Context, entry domain.LakeEntry) ([]byte, error) {
	return f.content[entry.Location], nil
}

// storeFake mimics unique-key conflict handling of the SQL store.
type storeFake struct {
	records     map[int64]domain.SourceRecord
	attachments map[string]domain.Attachment
	annotations map[string]domain.Annotation
	misses      map[string]domain.ArtifactMiss

	writeErr    error
	annotateErr error
	writeCalls  int
	batchSizes  []int
}

func newStoreFake() *storeFake {
	return &storeFake{
		records:     make(map[int64]domain.SourceRecord),
		attachments: make(map[string]domain.Attachment),
		annotations: make(map[string]domain.Annotation),
		misses:      make(map[string]domain.ArtifactMiss),
	}
}

func unitKey(key int64, location string) string {
	return fmt.Sprintf("%d#%s", key, location)
}

func (f *storeFake) WriteSourceRecords(_ context.Context, records []domain.SourceRecord) (int64, error) {
	f.writeCalls++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	var inserted int64
	for _, r := range records {
		if _, ok := f.records[r.NaturalKey]; ok {
			continue
		}
		f.records[r.NaturalKey] = r
		inserted++
	}
	return inserted, nil
}

func (f *storeFake) WriteAttachments(_ context.Context, attachments []domain.Attachment) (int64, error) {
	f.writeCalls++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	var inserted int64
	for _, a := range attachments {
		k := unitKey(a.OwnerKey, a.Location)
		if _, ok := f.attachments[k]; ok {
			continue
		}
		f.attachments[k] = a
		inserted++
	}
	return inserted, nil
}

func (f *storeFake) ExistingSourceKeys(_ context.Context, keys []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(keys))
	for _, k := range keys {
		if _, ok := f.records[k]; ok {
			out[k] = true
		}
	}
	return out, nil
}

func (f *storeFake) SelectUnprocessed(context.Context) ([]domain.WorkUnit, error) {
	annotated := make(map[string]bool)
	for _, a := range f.annotations {
		annotated[unitKey(a.SubjectKey, a.SubjectLocation)] = true
	}
	var out []domain.WorkUnit
	for k, a := range f.attachments {
		if annotated[k] {
			continue
		}
		if _, missed := f.misses[k]; missed {
			continue
		}
		out = append(out, domain.WorkUnit{SubjectKey: a.OwnerKey, SubjectLocation: a.Location})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectKey != out[j].SubjectKey {
			return out[i].SubjectKey < out[j].SubjectKey
		}
		return out[i].SubjectLocation < out[j].SubjectLocation
	})
	return out, nil
}

func (f *storeFake) WriteAnnotations(_ context.Context, annotations []domain.Annotation) (int64, error) {
	f.batchSizes = append(f.batchSizes, len(annotations))
	if f.annotateErr != nil {
		return 0, f.annotateErr
	}
	var inserted int64
	for _, a := range annotations {
		k := unitKey(a.SubjectKey, a.SubjectLocation) + "#" + a.Label
		if _, ok := f.annotations[k]; ok {
			continue
		}
		f.annotations[k] = a
		inserted++
	}
	return inserted, nil
}

func (f *storeFake) RecordArtifactMiss(_ context.Context, miss domain.ArtifactMiss) (int64, error) {
	k := unitKey(miss.SubjectKey, miss.SubjectLocation)
	if _, ok := f.misses[k]; ok {
		return 0, nil
	}
	f.misses[k] = miss
	return 1, nil
}

func (f *storeFake) RequeueArtifactMisses(context.Context) (int64, error) {
	n := int64(len(f.misses))
	f.misses = make(map[string]domain.ArtifactMiss)
	return n, nil
}

type storageFake struct {
	missing map[string]bool
	err     error
}

func (f *storageFake) Locate(_ context.Context, location string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.missing[location] {
		return "", domain.WrapError(domain.ErrMissingArtifact, "locate artifact", io.ErrUnexpectedEOF)
	}
	return "/lake/" + location, nil
}

type labelerFake struct {
	labels map[string][]domain.Label
	errs   map[string]error
	calls  []string
}

func (f *labelerFake) Label(_ context.Context, p string) ([]domain.Label, error) {
	f.calls = append(f.calls, p)
	if err := f.errs[p]; err != nil {
		return nil, err
	}
	return f.labels[p], nil
}
