package filedb

// applyProjection implements spec.md §4.F: a projection is a mapping from
// dot path to 0 or 1. An empty projection is the identity. Mixing 0 and 1
// fails with MixedProjection, except that "_id" may always be toggled
// explicitly alongside either mode.
func applyProjection(doc M, projection M) (M, error) {
	if len(projection) == 0 {
		return doc, nil
	}

	mode, err := classifyProjection(projection)
	if err != nil {
		return nil, err
	}

	u := newUpdateEngine(nil)
	if mode == projectPick {
		out := M{}
		for path, v := range projection {
			include, _ := asFloat64(v)
			if path == "_id" && include == 0 {
				continue
			}
			val, exists := getAtPath(doc, splitPath(path))
			if exists {
				_ = u.modSet(out, path, val)
			}
		}
		if v, ok := projection["_id"]; !ok || truthy(v) {
			if id, exists := doc["_id"]; exists {
				out["_id"] = id
			}
		}
		return out, nil
	}

	// omit mode: start from a full copy, delete every listed path.
	out := deepCopyDoc(doc)
	for path, v := range projection {
		if path == "_id" && truthy(v) {
			continue
		}
		deleteAtPath(out, splitPath(path))
	}
	return out, nil
}

type projectionMode int

const (
	projectPick projectionMode = iota
	projectOmit
)

func classifyProjection(projection M) (projectionMode, error) {
	sawPick, sawOmit := false, false
	for path, v := range projection {
		if path == "_id" {
			continue // _id may always be toggled explicitly, in either mode
		}
		if truthy(v) {
			sawPick = true
		} else {
			sawOmit = true
		}
	}
	if sawPick && sawOmit {
		return 0, newErr(MixedProjection, "cannot mix inclusion and exclusion in the same projection")
	}
	if sawPick {
		return projectPick, nil
	}
	// sawOmit, or only "_id" was present (an omit-style toggle by itself).
	return projectOmit, nil
}

func truthy(v interface{}) bool {
	f, ok := asFloat64(v)
	return ok && f != 0
}
