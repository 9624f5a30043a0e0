package cli

import (
	"fmt"

	"github.com/drgatoxd/mongo-cache/store"
)

// Record is a schemaless document as handled by the CLI.
type Record map[string]any

func (r Record) EntityID() string {
	switch v := r[store.IDField].(type) {
	case string:
		return v
	case interface{ Hex() string }: // ObjectID written by other clients
		return v.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
