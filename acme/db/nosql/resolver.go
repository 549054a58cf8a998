package nosql

import (
	"context"
	"strings"

	nosqlDB "github.com/smallstep/nosql"

	"github.com/certsecure/acmed/acme"
)

// hop is one parent-resolution step of a composite query. The parent's
// primary key is read from the already-flattened row at idField, the parent
// document is loaded from table, and its fields are merged into the row
// under prefix with "__" separators.
type hop struct {
	prefix    string
	idField   string
	table     []byte
	unmarshal func(db *DB, data []byte) (acme.Record, error)
}

// pipeline is the fixed hop configuration for one composite query family.
// routes is the routing table for composite predicates: it maps every
// supported dotted column to the hop prefix that owns it, so a predicate is
// evaluated against the joined parent instead of matched literally against
// the leaf entity.
type pipeline struct {
	entity string
	table  []byte
	index  []byte
	leaf   func(db *DB, data []byte) (acme.Record, error)
	hops   []hop
	routes map[string]string
}

// expand runs the hop chain over a flattened leaf row. It returns false when
// a parent reference is broken, in which case the row is dropped from the
// result: the aggregate query degrades gracefully, but the condition is
// counted and logged for operational visibility.
func (p *pipeline) expand(_ context.Context, db *DB, row acme.Record) (bool, error) {
	for _, h := range p.hops {
		id, _ := row[h.idField].(string)
		if id == "" {
			db.countBrokenReference(p.entity, h.prefix)
			return false, nil
		}
		data, err := db.db.Get(h.table, []byte(id))
		if nosqlDB.IsErrNotFound(err) {
			db.countBrokenReference(p.entity, h.prefix)
			return false, nil
		} else if err != nil {
			return false, acme.WrapError(acme.ErrorStoreUnavailableType, err,
				"error expanding %s hop %s", p.entity, h.prefix)
		}
		parent, err := h.unmarshal(db, data)
		if err != nil {
			db.countBrokenReference(p.entity, h.prefix)
			return false, nil
		}
		for k, v := range parent {
			row[h.prefix+"__"+k] = v
		}
	}
	return true, nil
}

// routed validates a predicate column against the pipeline's routing table.
// Leaf columns route implicitly; dotted columns must name a configured hop.
func (p *pipeline) routed(column string) bool {
	if !strings.Contains(column, "__") {
		return true
	}
	_, ok := p.routes[column]
	return ok
}

// search lists the pipeline's leaf table, expands every row through the hop
// chain, and returns the rows whose flattened column matches the pattern,
// reduced to the caller's projection. Ordering is the store's native order.
func (db *DB) search(ctx context.Context, p *pipeline, column, pattern string, projection []string) ([]acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	if !p.routed(column) {
		db.logger.Warn("unroutable composite column in search",
			"entity", p.entity, "column", column)
		return []acme.Record{}, nil
	}

	entries, err := db.db.List(p.table)
	if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error listing %ss", p.entity)
	}

	rows := []acme.Record{}
	for _, e := range entries {
		row, err := p.leaf(db, e.Value)
		if err != nil {
			db.logger.Warn("skipping corrupt document",
				"entity", p.entity, "key", string(e.Key), "error", err)
			continue
		}
		ok, err := p.expand(ctx, db, row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if matchesPattern(row[column], pattern) {
			rows = append(rows, project(row, projection))
		}
	}
	return rows, nil
}

// lookup returns the first match of the pipeline's search. Addressing by
// "name" or "id" is exact via the index table; pattern matching is reserved
// for the search family and non-key columns.
func (db *DB) lookup(ctx context.Context, p *pipeline, column, pattern string, projection []string) (acme.Record, error) {
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	switch column {
	case "name":
		if p.index == nil {
			break
		}
		id, ok, err := db.nameToID(p.index, pattern)
		if err != nil {
			return nil, err
		}
		if !ok {
			return acme.Record{}, nil
		}
		return db.lookupByID(ctx, p, id, projection)
	case "id":
		return db.lookupByID(ctx, p, pattern, projection)
	}

	rows, err := db.search(ctx, p, column, pattern, projection)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return acme.Record{}, nil
	}
	return rows[0], nil
}

// lookupByID loads a single leaf document by primary key and expands it. A
// missing document or a broken parent reference is an empty result, not an
// error.
func (db *DB) lookupByID(ctx context.Context, p *pipeline, id string, projection []string) (acme.Record, error) {
	data, err := db.db.Get(p.table, []byte(id))
	if nosqlDB.IsErrNotFound(err) {
		return acme.Record{}, nil
	} else if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error loading %s %s", p.entity, id)
	}
	row, err := p.leaf(db, data)
	if err != nil {
		return nil, acme.WrapError(acme.ErrorStoreUnavailableType, err, "error unmarshaling %s %s", p.entity, id)
	}
	ok, err := p.expand(ctx, db, row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return acme.Record{}, nil
	}
	return project(row, projection), nil
}
