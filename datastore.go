package filedb

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Datastore is the façade of spec.md §4.L: one log file (or none, for
// memory-only use), one index set, one executor. Collection is a drop-in
// alias for callers coming from an mgo-shaped API.
type Datastore struct {
	cfg   Config
	fs    FS
	log   *zap.Logger
	hooks *HookPair

	exec    *executor
	matcher *matcher
	updater *updateEngine

	idx        *indexSet
	indexSpecs map[string]indexSpec

	compactSf    singleflight.Group
	compactTimer *time.Ticker
	compactStop  chan struct{}

	mu        sync.Mutex
	listeners []func()
}

// Collection is an alias for Datastore, matching the teacher's
// Collection = ModernColl convention (compatibility.go) for callers moving
// from an mgo-shaped API.
type Collection = Datastore

// New constructs a Datastore. If cfg.Autoload is set, LoadDatabase runs
// before New returns (or its error is routed to cfg.OnLoad, if set).
func New(cfg Config) (*Datastore, error) {
	return newWithFS(cfg, newRealFS())
}

// newWithFS is New with the filesystem collaborator injected, letting tests
// exercise the crash-safe write and recovery paths against a fake FS
// instead of real disk.
func newWithFS(cfg Config, fs FS) (*Datastore, error) {
	if cfg.Filename != "" {
		if err := validateFilename(cfg.Filename); err != nil {
			return nil, err
		}
	}
	if err := validateHooks(cfg.Hooks); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ds := &Datastore{
		cfg:        cfg,
		fs:         fs,
		log:        logger,
		hooks:      cfg.Hooks,
		exec:       newExecutor(),
		matcher:    newMatcher(cfg.CompareStrings),
		updater:    newUpdateEngine(cfg.CompareStrings),
		idx:        newIndexSet(cfg.CompareStrings),
		indexSpecs: map[string]indexSpec{},
	}

	if cfg.AutocompactionIntervalMs > 0 {
		ds.startAutocompaction(cfg.AutocompactionIntervalMs)
	}

	if cfg.Autoload {
		_, err := ds.exec.submitForceQueue(func() (interface{}, error) {
			return nil, ds.loadAndReplay()
		})
		if err != nil {
			if cfg.OnLoad != nil {
				cfg.OnLoad(err)
			} else {
				return nil, err
			}
		} else if cfg.OnLoad != nil {
			cfg.OnLoad(nil)
		}
	} else {
		ds.exec.setReady()
	}

	return ds, nil
}

// LoadDatabase replays the log from scratch, exactly as New does with
// Autoload set. Safe to call again later (e.g. to recover from an external
// restore of the log file).
func (ds *Datastore) LoadDatabase() error {
	_, err := ds.exec.submitForceQueue(func() (interface{}, error) {
		return nil, ds.loadAndReplay()
	})
	return err
}

// CompactDatafile rewrites the log to reflect the live in-memory state.
func (ds *Datastore) CompactDatafile() error {
	_, err := ds.exec.submit(func() (interface{}, error) {
		return nil, ds.compact()
	})
	return err
}

// OnCompactionDone registers fn to run after every successful compaction
// ("compaction.done", spec.md §6).
func (ds *Datastore) OnCompactionDone(fn func()) {
	ds.mu.Lock()
	ds.listeners = append(ds.listeners, fn)
	ds.mu.Unlock()
}

func (ds *Datastore) emitCompactionDone() {
	ds.mu.Lock()
	listeners := append([]func(){}, ds.listeners...)
	ds.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// startAutocompaction begins a periodic compaction timer, flooring the
// interval to 5000ms (spec.md §4.J). Overlapping fires collapse into a
// single in-flight compaction via singleflight.
func (ds *Datastore) startAutocompaction(intervalMs int64) {
	if intervalMs < minAutocompactionIntervalMs {
		intervalMs = minAutocompactionIntervalMs
	}
	ds.compactTimer = time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	ds.compactStop = make(chan struct{})
	go func() {
		for {
			select {
			case <-ds.compactTimer.C:
				ds.compactSf.Do("compact", func() (interface{}, error) {
					if err := ds.CompactDatafile(); err != nil {
						ds.log.Warn("autocompaction failed", zap.Error(err))
					}
					return nil, nil
				})
			case <-ds.compactStop:
				return
			}
		}
	}()
}

// StopAutocompaction cancels the autocompaction timer, if any.
func (ds *Datastore) StopAutocompaction() {
	if ds.compactTimer == nil {
		return
	}
	ds.compactTimer.Stop()
	close(ds.compactStop)
	ds.compactTimer = nil
}

// --- insert ---

// Insert adds one or more documents. A single document's error is returned
// directly; a multi-document insert where more than one document fails
// aggregates the failures into a *BulkError (legacy_types.go).
func (ds *Datastore) Insert(docs ...M) ([]M, error) {
	v, err := ds.exec.submit(func() (interface{}, error) {
		return ds.insertRaw(docs)
	})
	if v == nil {
		return nil, err
	}
	return v.([]M), err
}

func (ds *Datastore) insertRaw(docs []M) ([]M, error) {
	inserted := make([]M, 0, len(docs))
	var lines []string
	var cases []BulkErrorCase

	for i, doc := range docs {
		prepared, err := ds.prepareInsert(doc)
		if err != nil {
			cases = append(cases, BulkErrorCase{Index: i, Err: err})
			continue
		}
		if err := ds.idx.addToIndexes(prepared); err != nil {
			cases = append(cases, BulkErrorCase{Index: i, Err: err})
			continue
		}
		line, err := serializeDoc(prepared)
		if err != nil {
			ds.idx.removeFromIndexes(prepared)
			cases = append(cases, BulkErrorCase{Index: i, Err: err})
			continue
		}
		lines = append(lines, line)
		inserted = append(inserted, deepCopyDoc(prepared))
	}

	if err := ds.appendLines(lines); err != nil {
		return inserted, err
	}

	if len(cases) == 0 {
		return inserted, nil
	}
	if len(cases) == 1 {
		return inserted, cases[0].Err
	}
	return inserted, &BulkError{ecases: cases}
}

// prepareInsert deep-copies doc, assigns _id if absent, fills
// createdAt/updatedAt when configured, and validates keys (spec.md §4.L).
func (ds *Datastore) prepareInsert(doc M) (M, error) {
	prepared := deepCopyDoc(doc)
	if _, ok := prepared["_id"]; !ok || prepared["_id"] == nil {
		for {
			id := newDocId()
			if ix := ds.idx.idIndex(); len(ix.search(id)) == 0 {
				prepared["_id"] = id
				break
			}
		}
	}
	if ds.cfg.TimestampData {
		now := time.Now().UTC()
		if _, ok := prepared["createdAt"]; !ok {
			prepared["createdAt"] = now
		}
		prepared["updatedAt"] = now
	}
	if err := validateDoc(prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

// --- find / count ---

// Find starts a Cursor over query.
func (ds *Datastore) Find(query M) *Cursor {
	return &Cursor{ds: ds, query: query}
}

// FindOne returns the first document matching query, or (nil, nil) if none
// matches.
func (ds *Datastore) FindOne(query M) (M, error) {
	docs, err := ds.Find(query).Limit(1).Exec()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Count returns the number of documents matching query.
func (ds *Datastore) Count(query M) (int, error) {
	v, err := ds.exec.submit(func() (interface{}, error) {
		candidates, err := ds.getCandidatesRaw(query, false)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, d := range candidates {
			ok, err := ds.matcher.match(d, query)
			if err != nil {
				return 0, err
			}
			if ok {
				n++
			}
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// getCandidatesRaw implements the candidate-selection strategy order of
// spec.md §4.L (equality, $in, range, full scan) and applies the TTL sweep
// over the result.
func (ds *Datastore) getCandidatesRaw(query M, dontExpireStaleDocs bool) ([]M, error) {
	candidates, err := ds.selectCandidates(query)
	if err != nil {
		return nil, err
	}
	if dontExpireStaleDocs || len(ds.indexSpecs) == 0 {
		return candidates, nil
	}
	return ds.sweepExpired(candidates), nil
}

func (ds *Datastore) selectCandidates(query M) ([]M, error) {
	isLogical := func(k string) bool {
		return k == "$or" || k == "$and" || k == "$not" || k == "$where"
	}

	// 1. equality
	for key, val := range query {
		if isLogical(key) {
			continue
		}
		ix, ok := ds.idx.get(key)
		if !ok {
			continue
		}
		if _, isOp, err := asOperatorObject(val); err == nil && !isOp {
			if _, isSeq := val.([]interface{}); !isSeq {
				return ix.search(val), nil
			}
		}
	}
	// 2. $in
	for key, val := range query {
		if isLogical(key) {
			continue
		}
		ix, ok := ds.idx.get(key)
		if !ok {
			continue
		}
		opObj, isOp, err := asOperatorObject(val)
		if err != nil {
			return nil, err
		}
		if !isOp {
			continue
		}
		if in, ok := opObj["$in"]; ok {
			choices, _ := in.([]interface{})
			return ix.searchAny(choices), nil
		}
	}
	// 3. range
	for key, val := range query {
		if isLogical(key) {
			continue
		}
		ix, ok := ds.idx.get(key)
		if !ok {
			continue
		}
		opObj, isOp, err := asOperatorObject(val)
		if err != nil {
			return nil, err
		}
		if !isOp {
			continue
		}
		b := bounds{}
		has := false
		if v, ok := opObj["$gt"]; ok {
			b.gt, b.hasGt = v, true
			has = true
		}
		if v, ok := opObj["$gte"]; ok {
			b.gte, b.hasGte = v, true
			has = true
		}
		if v, ok := opObj["$lt"]; ok {
			b.lt, b.hasLt = v, true
			has = true
		}
		if v, ok := opObj["$lte"]; ok {
			b.lte, b.hasLte = v, true
			has = true
		}
		if has {
			return ix.betweenBounds(b), nil
		}
	}
	// 4. fallback: full scan
	var all []M
	ds.idx.idIndex().executeOnEveryNode(func(_ interface{}, docs []M) {
		all = append(all, docs...)
	})
	return all, nil
}

// sweepExpired drops documents whose registered TTL field is older than
// its threshold, scheduling their removal asynchronously (spec.md §4.L).
func (ds *Datastore) sweepExpired(candidates []M) []M {
	out := make([]M, 0, len(candidates))
	var expiredIds []interface{}
	now := time.Now().UTC()
	for _, d := range candidates {
		expired := false
		for fieldName, spec := range ds.indexSpecs {
			if !spec.HasExpire {
				continue
			}
			v := getDotValue(d, fieldName)
			t, ok := v.(time.Time)
			if !ok {
				continue
			}
			if now.Sub(t) > time.Duration(spec.ExpireAfterSecs)*time.Second {
				expired = true
				break
			}
		}
		if expired {
			expiredIds = append(expiredIds, d["_id"])
			continue
		}
		out = append(out, d)
	}
	for _, id := range expiredIds {
		go func(id interface{}) {
			ds.exec.submit(func() (interface{}, error) {
				return ds.removeRaw(M{"_id": id}, RemoveOptions{Multi: false})
			})
		}(id)
	}
	return out
}

// --- update ---

// Update applies updateExpr to documents matching query.
func (ds *Datastore) Update(query M, updateExpr M, opts UpdateOptions) (ChangeInfo, error) {
	v, err := ds.exec.submit(func() (interface{}, error) {
		return ds.updateRaw(query, updateExpr, opts)
	})
	if v == nil {
		return ChangeInfo{}, err
	}
	return v.(ChangeInfo), err
}

func (ds *Datastore) updateRaw(query M, updateExpr M, opts UpdateOptions) (ChangeInfo, error) {
	candidates, err := ds.getCandidatesRaw(query, true)
	if err != nil {
		return ChangeInfo{}, err
	}
	var matched []M
	for _, d := range candidates {
		ok, err := ds.matcher.match(d, query)
		if err != nil {
			return ChangeInfo{}, err
		}
		if ok {
			matched = append(matched, d)
		}
	}

	if len(matched) == 0 {
		if !opts.Upsert {
			return ChangeInfo{}, nil
		}
		newDoc, err := ds.buildUpsertDoc(query, updateExpr)
		if err != nil {
			return ChangeInfo{}, err
		}
		prepared, err := ds.prepareInsert(newDoc)
		if err != nil {
			return ChangeInfo{}, err
		}
		if err := ds.idx.addToIndexes(prepared); err != nil {
			return ChangeInfo{}, err
		}
		line, err := serializeDoc(prepared)
		if err != nil {
			ds.idx.removeFromIndexes(prepared)
			return ChangeInfo{}, err
		}
		if err := ds.appendLine(line); err != nil {
			return ChangeInfo{}, err
		}
		info := ChangeInfo{UpsertedId: prepared["_id"]}
		if opts.ReturnUpdatedDocs {
			info.UpdatedDocs = []M{deepCopyDoc(prepared)}
		}
		return info, nil
	}

	if !opts.Multi {
		matched = matched[:1]
	}

	pairs := make([]updatePair, 0, len(matched))
	lines := make([]string, 0, len(matched))
	for _, old := range matched {
		newDoc, err := ds.updater.applyUpdate(old, updateExpr)
		if err != nil {
			return ChangeInfo{}, err
		}
		if ds.cfg.TimestampData {
			newDoc["updatedAt"] = time.Now().UTC()
		}
		pairs = append(pairs, updatePair{old: old, new: newDoc})
		line, err := serializeDoc(newDoc)
		if err != nil {
			return ChangeInfo{}, err
		}
		lines = append(lines, line)
	}

	if err := ds.idx.updateIndexes(pairs); err != nil {
		return ChangeInfo{}, err
	}
	if err := ds.appendLines(lines); err != nil {
		return ChangeInfo{}, err
	}
	info := ChangeInfo{Matched: len(matched), Updated: len(pairs)}
	if opts.ReturnUpdatedDocs {
		info.UpdatedDocs = make([]M, len(pairs))
		for i, p := range pairs {
			info.UpdatedDocs[i] = deepCopyDoc(p.new)
		}
	}
	return info, nil
}

// buildUpsertDoc implements spec.md §4.L's upsert document construction: a
// pure replacement is used as-is; a modifier expression is applied on top
// of the query's own plain literal fields.
func (ds *Datastore) buildUpsertDoc(query, updateExpr M) (M, error) {
	isModifier, err := classifyUpdate(updateExpr)
	if err != nil {
		return nil, err
	}
	if !isModifier {
		return deepCopyDoc(updateExpr), nil
	}

	base := M{}
	for k, v := range query {
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			continue
		}
		if _, isOp, _ := asOperatorObject(v); isOp {
			continue
		}
		base[k] = deepCopy(v)
	}
	return ds.updater.applyUpdate(base, updateExpr)
}

// --- remove ---

// Remove deletes documents matching query.
func (ds *Datastore) Remove(query M, opts RemoveOptions) (ChangeInfo, error) {
	v, err := ds.exec.submit(func() (interface{}, error) {
		return ds.removeRaw(query, opts)
	})
	if v == nil {
		return ChangeInfo{}, err
	}
	return v.(ChangeInfo), err
}

// removeRaw always disables the TTL sweep on its own candidate selection
// (spec.md §4.L's dontExpireStaleDocs flag: "used by remove itself"),
// since the TTL sweep's own expiry path calls back into this method.
func (ds *Datastore) removeRaw(query M, opts RemoveOptions) (ChangeInfo, error) {
	candidates, err := ds.getCandidatesRaw(query, true)
	if err != nil {
		return ChangeInfo{}, err
	}
	var matched []M
	for _, d := range candidates {
		ok, err := ds.matcher.match(d, query)
		if err != nil {
			return ChangeInfo{}, err
		}
		if ok {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return ChangeInfo{}, nil
	}
	if !opts.Multi {
		matched = matched[:1]
	}

	lines := make([]string, 0, len(matched))
	for _, d := range matched {
		line, err := serializeTombstone(d["_id"])
		if err != nil {
			return ChangeInfo{}, err
		}
		lines = append(lines, line)
	}
	for _, d := range matched {
		ds.idx.removeFromIndexes(d)
	}
	if err := ds.appendLines(lines); err != nil {
		return ChangeInfo{}, err
	}
	return ChangeInfo{Removed: len(matched)}, nil
}

// --- indexes ---

// EnsureIndex registers a secondary index, building it from the documents
// already present.
func (ds *Datastore) EnsureIndex(opts IndexOptions) error {
	_, err := ds.exec.submit(func() (interface{}, error) {
		return nil, ds.ensureIndexRaw(opts)
	})
	return err
}

func (ds *Datastore) ensureIndexRaw(opts IndexOptions) error {
	if opts.FieldName == "" {
		return newErr(MissingFieldName, "ensureIndex requires a fieldName")
	}
	if _, exists := ds.idx.get(opts.FieldName); exists {
		return nil
	}
	ix := ds.idx.addIndex(opts.FieldName, opts.Unique, opts.Sparse)
	ix.hasExpire = opts.HasExpire
	ix.expireAfter = opts.ExpireAfterSeconds

	var built []M
	var buildErr error
	ds.idx.idIndex().executeOnEveryNode(func(_ interface{}, docs []M) {
		if buildErr != nil {
			return
		}
		for _, d := range docs {
			if err := ix.insert(d); err != nil {
				buildErr = err
				return
			}
			built = append(built, d)
		}
	})
	if buildErr != nil {
		for _, d := range built {
			ix.remove(d)
		}
		ds.idx.removeIndex(opts.FieldName)
		return buildErr
	}

	spec := indexSpec{
		FieldName:       opts.FieldName,
		Unique:          opts.Unique,
		Sparse:          opts.Sparse,
		ExpireAfterSecs: opts.ExpireAfterSeconds,
		HasExpire:       opts.HasExpire,
	}
	ds.indexSpecs[opts.FieldName] = spec
	line, err := serializeIndexCreated(spec)
	if err != nil {
		return err
	}
	return ds.appendLine(line)
}

// RemoveIndex drops a secondary index. Removing "_id" is a no-op.
func (ds *Datastore) RemoveIndex(fieldName string) error {
	_, err := ds.exec.submit(func() (interface{}, error) {
		if fieldName == idField {
			return nil, nil
		}
		ds.idx.removeIndex(fieldName)
		delete(ds.indexSpecs, fieldName)
		line, err := serializeIndexRemoved(fieldName)
		if err != nil {
			return nil, err
		}
		return nil, ds.appendLine(line)
	})
	return err
}
