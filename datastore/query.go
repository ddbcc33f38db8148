package datastore

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
)

const (
	opSet   = "$set"
	opUnset = "$unset"
	opInc   = "$inc"
	opPush  = "$push"
)

type updateOps struct {
	set   Document
	unset []string
	inc   map[string]float64
	push  Document
}

// splitUpdate sorts an update document into operators. Plain keys are
// treated as $set.
func splitUpdate(update Document) (updateOps, error) {
	ops := updateOps{set: Document{}, inc: map[string]float64{}, push: Document{}}

	u, err := normalize(update)
	if err != nil {
		return ops, err
	}

	for k, v := range u {
		if !strings.HasPrefix(k, "$") {
			ops.set[k] = v
			continue
		}

		fields, ok := v.(map[string]any)
		if !ok {
			return ops, fmt.Errorf("operator %s expects an object", k)
		}
		switch k {
		case opSet:
			for f, val := range fields {
				ops.set[f] = val
			}
		case opUnset:
			for f := range fields {
				ops.unset = append(ops.unset, f)
			}
		case opInc:
			for f, val := range fields {
				n, ok := val.(float64)
				if !ok {
					return ops, fmt.Errorf("$inc on %s expects a number", f)
				}
				ops.inc[f] = n
			}
		case opPush:
			for f, val := range fields {
				ops.push[f] = val
			}
		default:
			return ops, fmt.Errorf("unknown update operator %s", k)
		}
	}

	if _, ok := ops.set[IDField]; ok {
		return ops, fmt.Errorf("cannot modify %s", IDField)
	}
	return ops, nil
}

func (o updateOps) apply(d Document) error {
	for f, v := range o.set {
		d[f] = v
	}
	for _, f := range o.unset {
		delete(d, f)
	}
	for f, n := range o.inc {
		cur, ok := d[f]
		if !ok {
			d[f] = n
			continue
		}
		num, ok := cur.(float64)
		if !ok {
			return fmt.Errorf("$inc on non numeric field %s", f)
		}
		d[f] = num + n
	}
	for f, v := range o.push {
		cur, ok := d[f]
		if !ok {
			d[f] = []any{v}
			continue
		}
		arr, ok := cur.([]any)
		if !ok {
			return fmt.Errorf("$push on non array field %s", f)
		}
		d[f] = append(append([]any(nil), arr...), v)
	}
	return nil
}

// matches reports whether every field of q equals the same field of d.
func matches(d, q Document) bool {
	for k, v := range q {
		got, ok := d[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

func normalize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if d == nil {
		d = Document{}
	}
	return d, nil
}

func normalizeQuery(q Document) (Document, error) {
	if len(q) == 0 {
		return nil, nil
	}
	return normalize(q)
}

func clone(d Document) Document {
	out, err := normalize(d)
	if err != nil {
		return Document{}
	}
	return out
}

func removeFile(file string) error {
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
