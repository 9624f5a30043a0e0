package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	mongocache "github.com/drgatoxd/mongo-cache"
)

type argKind int

const (
	noArgs     argKind = iota
	idArg              // <id>
	queryArg           // [json]
	idQueryArg         // <id> [json]
)

type opInput struct {
	id string
	q  mongocache.Query
}

// op is one cache operation, exposed both as a subcommand and as a shell command.
type op struct {
	name  string
	short string
	args  argKind
	run   func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error)
}

type notFound struct{}

type mirrorSize int

func found(r Record, ok bool) any {
	if !ok {
		return notFound{}
	}
	return r
}

var ops = []op{
	{"get", "Get a document by id, mirror first", idArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			r, ok, err := c.Get(ctx, in.id)
			return found(r, ok), err
		}},
	{"get-or-create", "Get a document by id, inserting {_id: id} when missing", idArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return c.GetOrCreate(ctx, in.id)
		}},
	{"find", "Find the first stored document matching a query", queryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			r, ok, err := c.Find(ctx, in.q)
			return found(r, ok), err
		}},
	{"find-or-create", "Find a document, creating it from the query when missing", queryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return c.FindOrCreate(ctx, in.q)
		}},
	{"filter", "Match a query against mirrored documents only", queryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return c.Filter(ctx, in.q)
		}},
	{"fetch", "Fetch stored documents matching a query and reconcile the mirror", queryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return c.FetchFilter(ctx, in.q)
		}},
	{"all", "List mirrored documents", noArgs,
		func(ctx context.Context, c mongocache.Cache[Record], _ opInput) (any, error) {
			return c.All(ctx)
		}},
	{"list", "List stored documents and reconcile the mirror", noArgs,
		func(ctx context.Context, c mongocache.Cache[Record], _ opInput) (any, error) {
			return c.FetchAll(ctx)
		}},
	{"reload", "Replace the mirror with every stored document", noArgs,
		func(ctx context.Context, c mongocache.Cache[Record], _ opInput) (any, error) {
			return c.Reload(ctx)
		}},
	{"create", "Insert a document", queryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return c.Create(ctx, in.q)
		}},
	{"update", "Merge top-level fields into a document", idQueryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			ok, err := c.Update(ctx, in.id, in.q)
			if err != nil || !ok {
				return notFound{}, err
			}
			return "updated", nil
		}},
	{"delete", "Delete a document by id", idArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return "ok", c.Delete(ctx, in.id)
		}},
	{"delete-all", "Delete every document", noArgs,
		func(ctx context.Context, c mongocache.Cache[Record], _ opInput) (any, error) {
			return "ok", c.DeleteAll(ctx)
		}},
	{"delete-where", "Delete every document matching a query", queryArg,
		func(ctx context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			return "ok", c.DeleteWhere(ctx, in.q)
		}},
	{"peek", "Show the mirrored copy of a document", idArg,
		func(_ context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			r, ok := c.Peek(in.id)
			return found(r, ok), nil
		}},
	{"evict", "Drop a document from the mirror", idArg,
		func(_ context.Context, c mongocache.Cache[Record], in opInput) (any, error) {
			c.Evict(in.id)
			return "ok", nil
		}},
	{"purge", "Empty the mirror", noArgs,
		func(_ context.Context, c mongocache.Cache[Record], _ opInput) (any, error) {
			c.Purge()
			return "ok", nil
		}},
	{"len", "Count mirrored documents", noArgs,
		func(_ context.Context, c mongocache.Cache[Record], _ opInput) (any, error) {
			return mirrorSize(c.Len()), nil
		}},
}

func lookupOp(name string) (op, bool) {
	for _, o := range ops {
		if o.name == name {
			return o, true
		}
	}
	return op{}, false
}

func (o op) usage() string {
	switch o.args {
	case idArg:
		return o.name + " <id>"
	case queryArg:
		return o.name + " [json]"
	case idQueryArg:
		return o.name + " <id> [json]"
	default:
		return o.name
	}
}

func parseInput(kind argKind, rest string) (opInput, error) {
	var in opInput
	rest = strings.TrimSpace(rest)
	switch kind {
	case noArgs:
		if rest != "" {
			return in, usageError("unexpected arguments %q", rest)
		}
	case idArg:
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return in, usageError("expected exactly one id")
		}
		in.id = rest
	case queryArg:
		q, err := parseQuery(rest)
		if err != nil {
			return in, err
		}
		in.q = q
	case idQueryArg:
		id, tail, _ := strings.Cut(rest, " ")
		if id == "" {
			return in, usageError("expected an id")
		}
		q, err := parseQuery(tail)
		if err != nil {
			return in, err
		}
		in.id, in.q = id, q
	}
	return in, nil
}

func parseQuery(s string) (mongocache.Query, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return mongocache.Query{}, nil
	}
	var q map[string]any
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return nil, usageError("invalid json document: %v", err)
	}
	if q == nil {
		return nil, usageError("expected a json object")
	}
	return q, nil
}

// exec runs o against the session's cache and prints the result to out.
func (s *session) exec(ctx context.Context, o op, rest string, out io.Writer) error {
	in, err := parseInput(o.args, rest)
	if err != nil {
		return err
	}
	res, err := o.run(ctx, s.cache, in)
	if err != nil {
		return err
	}
	return s.print(out, res)
}

func (s *session) print(out io.Writer, v any) error {
	switch v := v.(type) {
	case notFound:
		_, err := fmt.Fprintln(out, "(not found)")
		return err
	case Record:
		return s.printDoc(out, v)
	case []Record:
		for _, r := range v {
			if err := s.printDoc(out, r); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(out, "(%d documents)\n", len(v))
		return err
	case mirrorSize:
		_, err := fmt.Fprintln(out, int(v))
		return err
	default:
		_, err := fmt.Fprintln(out, v)
		return err
	}
}

// printDoc writes one JSON line with sorted keys, in the store's field naming.
func (s *session) printDoc(out io.Writer, r Record) error {
	doc, err := s.mapper.Fields(r)
	if err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}
