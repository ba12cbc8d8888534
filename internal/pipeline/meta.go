package pipeline

import (
	"fmt"

	"github.com/minidb/minidb/internal/acl"
	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/pager"
)

// doMeta handles the "meta" command's sub-commands, all of which
// bypass the permission mask: they govern the session and connection
// itself rather than database contents.
func (e *Engine) doMeta(sess *Session, stmt *Statement) *Outcome {
	switch stmt.MetaCommand {
	case "exit":
		return &Outcome{Resp: OK("goodbye", 0), Close: true}
	case "format":
		return outcome(e.doMetaFormat(sess, stmt))
	case "constants":
		return outcome(e.doMetaConstants())
	case "btree":
		return outcome(e.doMetaBtree(sess, stmt))
	case "txn begin":
		return outcome(e.doTxnBegin(sess))
	case "txn commit":
		return outcome(e.doTxnCommit(sess))
	case "txn rollback":
		return outcome(e.doTxnRollback(sess))
	case "txn status":
		return outcome(e.doTxnStatus(sess))
	case "txn enable":
		return outcome(e.doTxnEnable(sess))
	case "txn disable":
		return outcome(e.doTxnDisable(sess))
	default:
		return outcome(Err(fmt.Errorf("unrecognized meta command %q", stmt.MetaCommand)))
	}
}

func (e *Engine) doMetaFormat(sess *Session, stmt *Statement) *Response {
	switch stmt.FormatType {
	case "json", "table":
		sess.Format = stmt.FormatType
		return OK(fmt.Sprintf("format set to %q", stmt.FormatType), 0)
	default:
		return Err(fmt.Errorf("format: unsupported format_type %q", stmt.FormatType))
	}
}

// doMetaConstants reports the compiled-in size limits a client may
// need to reason about (page size, table/column/index caps, and so
// on), mirroring the original's "meta constants" diagnostic.
func (e *Engine) doMetaConstants() *Response {
	return Rows([]map[string]any{{
		"page_size":              pager.PageSize,
		"max_pages":              pager.MaxPages,
		"max_tables":             catalog.MaxTables,
		"max_columns":            catalog.MaxColumns,
		"max_indexes":            catalog.MaxIndexes,
		"max_table_name":         catalog.MaxTableName,
		"max_column_name":        catalog.MaxColumnName,
		"max_users":              acl.MaxUsers,
		"max_active_sessions":    acl.MaxActiveSessions,
		"max_username_size":      acl.MaxUsernameSize,
		"max_password_hash_size": acl.MaxPasswordHashSize,
	}})
}

// doMetaBtree dumps every leaf cell of the named table's single root
// page: row key and decoded column values, in storage order. A
// diagnostic, not a query path — it bypasses WHERE/projection
// entirely.
func (e *Engine) doMetaBtree(sess *Session, stmt *Statement) *Response {
	tableName := stmt.Table
	if tableName == "" {
		tableName = sess.TableName
	}
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	ot, err := odb.getTable(tableName)
	if err != nil {
		return Err(err)
	}
	ot.mu.Lock()
	defer ot.mu.Unlock()

	c, err := ot.tbl.Start()
	if err != nil {
		return Err(err)
	}
	var results []map[string]any
	for !c.EndOfTable {
		key, err := c.KeyAtCursor()
		if err != nil {
			return Err(err)
		}
		values, err := ot.tbl.DecodeRow(c)
		if err != nil {
			return Err(err)
		}
		entry := map[string]any{"cell": c.CellNum, "key": key}
		for i, col := range ot.tbl.Def.Columns {
			entry[col.Name] = values[i]
		}
		results = append(results, entry)
		if err := c.Advance(); err != nil {
			return Err(err)
		}
	}
	return Rows(results)
}

func (e *Engine) doTxnBegin(sess *Session) *Response {
	if sess.TxnID != 0 {
		return Err(fmt.Errorf("txn begin: transaction %d already in progress, nested begin rejected", sess.TxnID))
	}
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	id, err := odb.txns.Begin()
	if err != nil {
		return Err(err)
	}
	sess.TxnID = id
	return OK(fmt.Sprintf("transaction %d started", id), 0)
}

func (e *Engine) doTxnCommit(sess *Session) *Response {
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	if err := odb.txns.Commit(sess.TxnID); err != nil {
		return Err(err)
	}
	id := sess.TxnID
	sess.TxnID = 0
	return OK(fmt.Sprintf("transaction %d committed", id), 0)
}

func (e *Engine) doTxnRollback(sess *Session) *Response {
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	if err := odb.txns.Rollback(sess.TxnID); err != nil {
		return Err(err)
	}
	id := sess.TxnID
	sess.TxnID = 0
	return OK(fmt.Sprintf("transaction %d rolled back", id), 0)
}

func (e *Engine) doTxnStatus(sess *Session) *Response {
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	state, changeCount, err := odb.txns.Status(sess.TxnID)
	if err != nil {
		return Err(err)
	}
	return Rows([]map[string]any{{
		"id":           sess.TxnID,
		"state":        state.String(),
		"change_count": changeCount,
	}})
}

func (e *Engine) doTxnEnable(sess *Session) *Response {
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	odb.txns.Enable()
	return OK("transaction manager enabled", 0)
}

func (e *Engine) doTxnDisable(sess *Session) *Response {
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	if err := odb.txns.Disable(); err != nil {
		return Err(err)
	}
	return OK("transaction manager disabled", 0)
}
