package filedb

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// docKey turns a document's _id into a stable map key, since an id may be
// any comparable value (string by default, but caller-supplied ids can be
// numbers or dates).
func docKey(id interface{}) string {
	return fmt.Sprintf("%T:%v", id, id)
}

// appendLine writes one already-serialized record to the log, running it
// through the AfterSerialization hook first when one is configured.
func (ds *Datastore) appendLine(line string) error {
	if ds.cfg.InMemoryOnly || ds.cfg.Filename == "" {
		return nil
	}
	if ds.hooks != nil {
		line = ds.hooks.AfterSerialization(line)
	}
	return ds.fs.AppendFile(ds.cfg.Filename, []byte(line+"\n"))
}

func (ds *Datastore) appendLines(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if ds.cfg.InMemoryOnly || ds.cfg.Filename == "" {
		return nil
	}
	var b strings.Builder
	for _, line := range lines {
		if ds.hooks != nil {
			line = ds.hooks.AfterSerialization(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return ds.fs.AppendFile(ds.cfg.Filename, []byte(b.String()))
}

// compact rewrites the whole log from the in-memory cache: one line per live
// document, one $$indexCreated line per non-_id index (spec.md §4.J).
func (ds *Datastore) compact() error {
	if ds.cfg.InMemoryOnly || ds.cfg.Filename == "" {
		return nil
	}
	var lines []string
	var walkErr error
	ds.idx.idIndex().executeOnEveryNode(func(_ interface{}, docs []M) {
		for _, d := range docs {
			line, err := serializeDoc(d)
			if err != nil {
				walkErr = err
				return
			}
			lines = append(lines, line)
		}
	})
	if walkErr != nil {
		return walkErr
	}
	for _, name := range ds.idx.order {
		if name == idField {
			continue
		}
		spec, ok := ds.indexSpecs[name]
		if !ok {
			continue
		}
		line, err := serializeIndexCreated(spec)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	var b strings.Builder
	for _, line := range lines {
		if ds.hooks != nil {
			line = ds.hooks.AfterSerialization(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := crashSafeWrite(ds.fs, ds.cfg.Filename, []byte(b.String())); err != nil {
		ds.log.Error("compaction failed", zap.Error(err))
		return err
	}
	ds.log.Debug("compaction complete", zap.Int("liveDocs", ds.idx.idIndex().size()))
	ds.emitCompactionDone()
	return nil
}

// loadAndReplay implements spec.md §4.J's load procedure: reset indexes,
// ensure the datafile exists and is intact, replay every record, rebuild
// indexes from the surviving documents, then compact to a fresh log.
func (ds *Datastore) loadAndReplay() error {
	ds.idx.resetAll()
	ds.indexSpecs = map[string]indexSpec{}

	if ds.cfg.InMemoryOnly || ds.cfg.Filename == "" {
		ds.exec.setReady()
		return nil
	}

	dir := dirOf(ds.cfg.Filename)
	if dir != "" {
		if err := ds.fs.MkdirAll(dir); err != nil {
			return err
		}
	}
	if err := ensureDatafileIntegrity(ds.fs, ds.cfg.Filename); err != nil {
		return err
	}

	data, err := ds.fs.ReadFile(ds.cfg.Filename)
	if err != nil {
		return err
	}
	lines := splitLines(string(data))

	docs := map[string]M{}
	pendingSpecs := map[string]indexSpec{}
	corrupt := 0

	for _, raw := range lines {
		line := raw
		if ds.hooks != nil {
			line = ds.hooks.BeforeDeserialization(line)
		}
		rec, err := deserializeLine(line)
		if err != nil {
			corrupt++
			continue
		}
		switch rec.kind {
		case recordDoc:
			id, ok := rec.doc["_id"]
			if !ok {
				corrupt++
				continue
			}
			docs[docKey(id)] = rec.doc
		case recordDeleted:
			delete(docs, docKey(rec.deletedId))
		case recordIndexCreated:
			pendingSpecs[rec.index.FieldName] = rec.index
		case recordIndexRemoved:
			delete(pendingSpecs, rec.removed)
		}
	}

	threshold := ds.cfg.CorruptAlertThreshold
	if threshold == 0 {
		threshold = defaultCorruptAlertThreshold
	}
	if len(lines) > 0 && float64(corrupt)/float64(len(lines)) > threshold {
		return newErr(CorruptDatafile, fmt.Sprintf("datafile has %d corrupt lines out of %d (threshold %.2f)", corrupt, len(lines), threshold))
	}

	for fieldName, spec := range pendingSpecs {
		ix := ds.idx.addIndex(fieldName, spec.Unique, spec.Sparse)
		ix.hasExpire = spec.HasExpire
		ix.expireAfter = spec.ExpireAfterSecs
	}
	ds.indexSpecs = pendingSpecs

	for _, d := range docs {
		if err := ds.idx.addToIndexes(d); err != nil {
			ds.idx.resetAll()
			ds.indexSpecs = map[string]indexSpec{}
			return err
		}
	}

	if err := ds.compact(); err != nil {
		return err
	}
	ds.exec.setReady()
	ds.log.Info("database loaded", zap.String("file", ds.cfg.Filename), zap.Int("documents", len(docs)), zap.Int("corruptLines", corrupt))
	return nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
