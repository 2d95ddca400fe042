package filedb

import "strings"

// modifierFn applies one update operator to one (field, value) pair of a
// modifier expression. obj is mutated in place; it is always a fresh deep
// copy of the original document by the time any modifier runs.
type modifierFn func(m *updateEngine, obj M, field string, value interface{}) error

var modifiers = map[string]modifierFn{
	"$set":      (*updateEngine).modSet,
	"$unset":    (*updateEngine).modUnset,
	"$inc":      (*updateEngine).modInc,
	"$min":      (*updateEngine).modMin,
	"$max":      (*updateEngine).modMax,
	"$push":     (*updateEngine).modPush,
	"$addToSet": (*updateEngine).modAddToSet,
	"$pop":      (*updateEngine).modPop,
	"$pull":     (*updateEngine).modPull,
}

// modifierOrder is the fixed order in which top-level operator keys of a
// modifier expression are applied. spec.md §4.E calls for "iteration order
// of their keys", but Go maps carry no key order; this canonical order
// (set before unset, arithmetic before array ops) is the deterministic
// substitute, documented as an open-question resolution in DESIGN.md.
var modifierOrder = []string{"$set", "$unset", "$inc", "$min", "$max", "$push", "$addToSet", "$pop", "$pull"}

type updateEngine struct {
	cmpStr StringComparator
}

func newUpdateEngine(cmpStr StringComparator) *updateEngine {
	return &updateEngine{cmpStr: cmpStr}
}

// applyUpdate computes the new document produced by applying updateExpr to
// original. It never mutates original. A replacement expression (no
// top-level "$" keys) replaces the whole document except _id; a modifier
// expression (all top-level keys start with "$") applies each modifier in
// modifierOrder. Mixing the two styles fails with MixedUpdate. Changing
// _id, by either style, fails with ImmutableId.
func (u *updateEngine) applyUpdate(original M, updateExpr M) (M, error) {
	isModifier, err := classifyUpdate(updateExpr)
	if err != nil {
		return nil, err
	}

	var result M
	if !isModifier {
		if newId, ok := updateExpr["_id"]; ok && !areThingsEqual(original["_id"], newId, u.cmpStr) {
			return nil, newErr(ImmutableId, "_id is immutable")
		}
		result = deepCopyDoc(updateExpr)
		result["_id"] = original["_id"]
	} else {
		for opKey := range updateExpr {
			if _, known := modifiers[opKey]; !known {
				return nil, newFieldErr(UnknownModifier, opKey, "unknown update modifier "+opKey)
			}
		}

		result = deepCopyDoc(original)
		for _, opKey := range modifierOrder {
			fields, ok := updateExpr[opKey]
			if !ok {
				continue
			}
			fn := modifiers[opKey]
			spec, ok := asDoc(fields)
			if !ok {
				return nil, newFieldErr(ModifierTypeError, opKey, opKey+" requires a document of field: value pairs")
			}
			for field, value := range spec {
				if err := fn(u, result, field, value); err != nil {
					return nil, err
				}
			}
		}
	}

	if !areThingsEqual(original["_id"], result["_id"], u.cmpStr) {
		return nil, newErr(ImmutableId, "_id is immutable")
	}
	if err := validateDoc(result); err != nil {
		return nil, err
	}
	return result, nil
}

func classifyUpdate(updateExpr M) (isModifier bool, err error) {
	hasOp, hasPlain := false, false
	for k := range updateExpr {
		if strings.HasPrefix(k, "$") {
			hasOp = true
		} else {
			hasPlain = true
		}
	}
	if hasOp && hasPlain {
		return false, newErr(MixedUpdate, "cannot mix a replacement document with update operators")
	}
	return hasOp, nil
}

// --- path helpers: auto-vivify intermediate mappings except for $unset ---

func splitPath(field string) []string {
	return strings.Split(field, ".")
}

func getAtPath(obj M, segs []string) (interface{}, bool) {
	var cur interface{} = obj
	for _, seg := range segs {
		m, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func setAtPath(obj M, segs []string, value interface{}) error {
	cur := obj
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			return nil
		}
		next, exists := cur[seg]
		if !exists {
			child := M{}
			cur[seg] = child
			cur = child
			continue
		}
		child, ok := asDoc(next)
		if !ok {
			return newFieldErr(ModifierTypeError, seg, "cannot descend into non-document field")
		}
		cur[seg] = child // normalize map[string]interface{} to M in place
		cur = child
	}
	return nil
}

func deleteAtPath(obj M, segs []string) {
	cur := obj
	for i, seg := range segs {
		if i == len(segs)-1 {
			delete(cur, seg)
			return
		}
		next, exists := cur[seg]
		if !exists {
			return // no-op on missing paths
		}
		child, ok := asDoc(next)
		if !ok {
			return
		}
		cur = child
	}
}

// --- individual modifiers ---

func (u *updateEngine) modSet(obj M, field string, value interface{}) error {
	return setAtPath(obj, splitPath(field), value)
}

func (u *updateEngine) modUnset(obj M, field string, _ interface{}) error {
	deleteAtPath(obj, splitPath(field))
	return nil
}

func (u *updateEngine) modInc(obj M, field string, value interface{}) error {
	segs := splitPath(field)
	delta, ok := asFloat64(value)
	if !ok {
		return newFieldErr(ModifierTypeError, field, "$inc requires a numeric operand")
	}
	cur, exists := getAtPath(obj, segs)
	if !exists {
		return setAtPath(obj, segs, value)
	}
	base, ok := asFloat64(cur)
	if !ok {
		return newFieldErr(ModifierTypeError, field, "$inc target is not numeric")
	}
	return setAtPath(obj, segs, base+delta)
}

func (u *updateEngine) modMin(obj M, field string, value interface{}) error {
	return u.modMinMax(obj, field, value, true)
}

func (u *updateEngine) modMax(obj M, field string, value interface{}) error {
	return u.modMinMax(obj, field, value, false)
}

func (u *updateEngine) modMinMax(obj M, field string, value interface{}, wantMin bool) error {
	segs := splitPath(field)
	cur, exists := getAtPath(obj, segs)
	if !exists {
		return setAtPath(obj, segs, value)
	}
	c := compareThings(value, cur, u.cmpStr)
	if (wantMin && c < 0) || (!wantMin && c > 0) {
		return setAtPath(obj, segs, value)
	}
	return nil
}

func (u *updateEngine) modPush(obj M, field string, value interface{}) error {
	segs := splitPath(field)
	cur, exists := getAtPath(obj, segs)
	var arr []interface{}
	if exists {
		seq, ok := cur.([]interface{})
		if !ok {
			return newFieldErr(ModifierTypeError, field, "$push target is not an array")
		}
		arr = seq
	}

	toAppend, slice, hasSlice, err := parsePushValue(value)
	if err != nil {
		return newFieldErr(ModifierTypeError, field, err.Error())
	}
	arr = append(arr, toAppend...)

	if hasSlice {
		arr = applySlice(arr, slice)
	}
	return setAtPath(obj, segs, arr)
}

func parsePushValue(value interface{}) (toAppend []interface{}, slice int, hasSlice bool, err error) {
	if spec, ok := asDoc(value); ok {
		if each, ok := spec["$each"]; ok {
			seq, ok := each.([]interface{})
			if !ok {
				return nil, 0, false, errModifierArray("$each requires an array")
			}
			toAppend = seq
			if sv, ok := spec["$slice"]; ok {
				if f, ok := asFloat64(sv); ok {
					return toAppend, int(f), true, nil
				}
			}
			return toAppend, 0, false, nil
		}
	}
	return []interface{}{value}, 0, false, nil
}

type modifierError string

func (e modifierError) Error() string { return string(e) }

func errModifierArray(msg string) error { return modifierError(msg) }

// applySlice trims arr the way Mongo's $push $slice does: a negative n
// keeps the last |n| elements, a non-negative n keeps the first n.
func applySlice(arr []interface{}, n int) []interface{} {
	if n >= 0 {
		if n < len(arr) {
			return arr[:n]
		}
		return arr
	}
	keep := -n
	if keep < len(arr) {
		return arr[len(arr)-keep:]
	}
	return arr
}

func (u *updateEngine) modAddToSet(obj M, field string, value interface{}) error {
	segs := splitPath(field)
	cur, exists := getAtPath(obj, segs)
	var arr []interface{}
	if exists {
		seq, ok := cur.([]interface{})
		if !ok {
			return newFieldErr(ModifierTypeError, field, "$addToSet target is not an array")
		}
		arr = seq
	}

	var toAdd []interface{}
	if spec, ok := asDoc(value); ok {
		if each, ok := spec["$each"]; ok {
			seq, ok := each.([]interface{})
			if !ok {
				return newFieldErr(ModifierTypeError, field, "$each requires an array")
			}
			toAdd = seq
		} else {
			toAdd = []interface{}{value}
		}
	} else {
		toAdd = []interface{}{value}
	}

	for _, candidate := range toAdd {
		if !containsThing(arr, candidate, u.cmpStr) {
			arr = append(arr, candidate)
		}
	}
	return setAtPath(obj, segs, arr)
}

func containsThing(arr []interface{}, v interface{}, cmpStr StringComparator) bool {
	for _, e := range arr {
		if compareThings(e, v, cmpStr) == 0 {
			return true
		}
	}
	return false
}

func (u *updateEngine) modPop(obj M, field string, value interface{}) error {
	segs := splitPath(field)
	cur, exists := getAtPath(obj, segs)
	if !exists {
		return nil
	}
	arr, ok := cur.([]interface{})
	if !ok {
		return newFieldErr(ModifierTypeError, field, "$pop target is not an array")
	}
	if len(arr) == 0 {
		return nil
	}
	n, _ := asFloat64(value)
	if n >= 0 {
		arr = arr[:len(arr)-1] // default/+1: drop the tail
	} else {
		arr = arr[1:] // -1: drop the head
	}
	return setAtPath(obj, segs, arr)
}

func (u *updateEngine) modPull(obj M, field string, value interface{}) error {
	segs := splitPath(field)
	cur, exists := getAtPath(obj, segs)
	if !exists {
		return nil
	}
	arr, ok := cur.([]interface{})
	if !ok {
		return newFieldErr(ModifierTypeError, field, "$pull target is not an array")
	}

	mtr := newMatcher(u.cmpStr)
	sub, isQuery := asDoc(value)

	out := arr[:0:0]
	for _, elem := range arr {
		var remove bool
		if isQuery && looksLikeQuery(sub) {
			elemDoc, ok := asDoc(elem)
			if ok {
				matched, err := mtr.match(elemDoc, sub)
				if err != nil {
					return err
				}
				remove = matched
			} else {
				remove = areThingsEqual(elem, value, u.cmpStr)
			}
		} else {
			remove = areThingsEqual(elem, value, u.cmpStr)
		}
		if !remove {
			out = append(out, elem)
		}
	}
	return setAtPath(obj, segs, out)
}

// looksLikeQuery distinguishes "{a: 1}" used as an equality literal on a
// scalar array from "{a: 1}" meant as a sub-document query for $pull: we
// treat it as a query whenever it's a non-empty document, matching the
// array of sub-documents use case the operator is chiefly meant for.
func looksLikeQuery(doc M) bool {
	return len(doc) > 0
}
