package pipeline

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/acl"
	"github.com/minidb/minidb/internal/btree"
	"github.com/minidb/minidb/internal/catalog"
	"github.com/minidb/minidb/internal/index"
	"github.com/minidb/minidb/internal/row"
	"github.com/minidb/minidb/internal/table"
	"github.com/minidb/minidb/internal/txn"
)

// openTable is a table kept open for the engine's lifetime, plus its
// opened secondary indexes and the lock writers hold for the duration
// of a page mutation (and readers for the duration of a cursor step),
// serializing access to the table's pages.
type openTable struct {
	mu      sync.Mutex
	tbl     *table.Table
	indexes map[string]*index.Index
}

// openDB is one loaded database's process-wide state: its catalog, its
// ACL, its transaction manager, and every table opened so far.
type openDB struct {
	mu     sync.Mutex // guards the tables map itself, not table contents
	cat    *catalog.Catalog
	aclmgr *acl.ACL
	txns   *txn.Manager
	tables map[string]*openTable
}

// Engine is the process-wide, multi-database pipeline: the shared
// state every connection's Session executes statements against.
type Engine struct {
	mu          sync.Mutex
	dbs         map[string]*openDB
	txnCapacity int
	aclEnforced bool
	log         zerolog.Logger
}

// NewEngine returns an Engine with no databases loaded yet.
func NewEngine(txnCapacity int, aclEnforced bool, log zerolog.Logger) *Engine {
	return &Engine{
		dbs:         make(map[string]*openDB),
		txnCapacity: txnCapacity,
		aclEnforced: aclEnforced,
		log:         log,
	}
}

// Outcome is Execute's result: a response to send, and whether the
// connection that issued the statement should be closed afterward
// (the meta "exit" command).
type Outcome struct {
	Resp  *Response
	Close bool
}

func outcome(r *Response) *Outcome { return &Outcome{Resp: r} }

func (e *Engine) loadDB(name string) (*openDB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.dbs[name]; ok {
		return db, nil
	}
	cat, err := catalog.Load(name)
	if err != nil {
		return nil, fmt.Errorf("database %q: %w", name, err)
	}
	a, err := acl.Load(name)
	if err != nil {
		return nil, fmt.Errorf("database %q: %w", name, err)
	}
	a.Enforced = e.aclEnforced
	odb := &openDB{
		cat:    cat,
		aclmgr: a,
		txns:   txn.NewManager(e.txnCapacity),
		tables: make(map[string]*openTable),
	}
	e.dbs[name] = odb
	return odb, nil
}

func (e *Engine) createDB(name string) (*openDB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.dbs[name]; ok {
		return nil, fmt.Errorf("database %q already exists", name)
	}
	if err := catalog.EnsureLayout(name); err != nil {
		return nil, err
	}
	cat := catalog.New(name)
	if err := cat.Save(); err != nil {
		return nil, err
	}
	a := acl.New()
	a.Enforced = e.aclEnforced
	if err := a.Save(name); err != nil {
		return nil, err
	}
	odb := &openDB{
		cat:    cat,
		aclmgr: a,
		txns:   txn.NewManager(e.txnCapacity),
		tables: make(map[string]*openTable),
	}
	e.dbs[name] = odb
	return odb, nil
}

// getTable opens (if needed) and returns the openTable for name,
// including all of its secondary indexes.
func (odb *openDB) getTable(name string) (*openTable, error) {
	odb.mu.Lock()
	defer odb.mu.Unlock()
	if ot, ok := odb.tables[name]; ok {
		return ot, nil
	}
	def, err := odb.cat.FindTable(name)
	if err != nil {
		return nil, err
	}
	tbl, err := table.Open(def)
	if err != nil {
		return nil, err
	}
	ot := &openTable{tbl: tbl, indexes: make(map[string]*index.Index)}
	for i := range def.Indexes {
		ixDef := &def.Indexes[i]
		col := def.Columns[def.ColumnIndex(ixDef.Column)]
		ix, err := index.Open(ixDef, col)
		if err != nil {
			return nil, err
		}
		ot.indexes[ixDef.Name] = ix
	}
	odb.tables[name] = ot
	return ot, nil
}

// Execute routes stmt through the ACL and dispatches it to the matching
// handler. Meta and authentication commands bypass the ACL, and so do
// create_database and use_database: they are dispatched before any
// database's ACL is consulted and are not gated by the role matrix,
// although CommandClass lists a class for each of them.
func (e *Engine) Execute(sess *Session, stmt *Statement) *Outcome {
	switch stmt.Command {
	case "login":
		return outcome(e.doLogin(sess, stmt))
	case "logout":
		return outcome(e.doLogout(sess, stmt))
	case "create_user":
		return outcome(e.doCreateUser(sess, stmt))
	case "drop_user":
		return outcome(e.doDropUser(sess, stmt))
	case "create_database":
		return outcome(e.doCreateDatabase(stmt))
	case "use_database":
		return outcome(e.doUseDatabase(sess, stmt))
	case "meta":
		return e.doMeta(sess, stmt)
	}

	if sess.DBName == "" {
		return outcome(Err(fmt.Errorf("no database selected")))
	}
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return outcome(Err(err))
	}

	class, hasClass := CommandClass(stmt.Command)
	if hasClass && !odb.aclmgr.HasPermission(sess.Username, class) {
		return outcome(Err(fmt.Errorf("permission denied for command %q", stmt.Command)))
	}

	switch stmt.Command {
	case "create_table":
		return outcome(e.doCreateTable(odb, stmt))
	case "use_table":
		return outcome(e.doUseTable(odb, sess, stmt))
	case "show_tables":
		return outcome(e.doShowTables(odb))
	case "show_indexes":
		return outcome(e.doShowIndexes(odb, stmt))
	case "create_index":
		return outcome(e.doCreateIndex(odb, stmt))
	case "insert":
		return outcome(e.doInsert(odb, sess, stmt))
	case "select":
		return outcome(e.doSelect(odb, sess, stmt))
	case "update":
		return outcome(e.doUpdate(odb, sess, stmt))
	case "delete":
		return outcome(e.doDelete(odb, sess, stmt))
	case "grant":
		return outcome(e.doGrant(odb, stmt))
	case "revoke":
		return outcome(e.doRevoke(odb, stmt))
	default:
		return outcome(Err(fmt.Errorf("unrecognized command %q", stmt.Command)))
	}
}

// RollbackSession rolls back sess's open transaction, if any, and
// clears it. Used by the server to unwind a connection that is being
// closed (idle reap, read error, or a dropped socket) with a
// transaction still in flight.
func (e *Engine) RollbackSession(sess *Session) {
	if sess.TxnID == 0 || sess.DBName == "" {
		return
	}
	e.mu.Lock()
	odb, ok := e.dbs[sess.DBName]
	e.mu.Unlock()
	if !ok {
		return
	}
	_ = odb.txns.Rollback(sess.TxnID)
	sess.TxnID = 0
}

func (e *Engine) doCreateDatabase(stmt *Statement) *Response {
	if stmt.Name == "" {
		return Err(fmt.Errorf("create_database: missing name"))
	}
	if _, err := e.createDB(stmt.Name); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("database %q created", stmt.Name), 0)
}

func (e *Engine) doUseDatabase(sess *Session, stmt *Statement) *Response {
	if stmt.Name == "" {
		return Err(fmt.Errorf("use_database: missing name"))
	}
	if _, err := e.loadDB(stmt.Name); err != nil {
		return Err(err)
	}
	sess.DBName = stmt.Name
	sess.TableName = ""
	return OK(fmt.Sprintf("using database %q", stmt.Name), 0)
}

func (e *Engine) doCreateTable(odb *openDB, stmt *Statement) *Response {
	if stmt.Table == "" {
		return Err(fmt.Errorf("create_table: missing table name"))
	}
	cols, err := parseColumnSpecs(stmt.ColumnDefs)
	if err != nil {
		return Err(err)
	}
	def, err := odb.cat.AddTable(stmt.Table, cols)
	if err != nil {
		return Err(err)
	}
	tbl, err := table.Open(def)
	if err != nil {
		return Err(err)
	}
	if err := tbl.Close(); err != nil {
		return Err(err)
	}
	if err := odb.cat.Save(); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("table %q created", stmt.Table), 0)
}

// doUseTable opens the named table (if it is not already open) and
// makes it the active table of the catalog and the session. Opened
// tables stay open for the engine's lifetime: the previously active
// table is neither closed nor flushed here, and no root page number is
// written back to the catalog.
func (e *Engine) doUseTable(odb *openDB, sess *Session, stmt *Statement) *Response {
	if stmt.Name == "" {
		return Err(fmt.Errorf("use_table: missing name"))
	}
	if _, err := odb.getTable(stmt.Name); err != nil {
		return Err(err)
	}
	if err := odb.cat.SetActive(stmt.Name); err != nil {
		return Err(err)
	}
	sess.TableName = stmt.Name
	return OK(fmt.Sprintf("using table %q", stmt.Name), 0)
}

func (e *Engine) doShowTables(odb *openDB) *Response {
	names := odb.cat.ListTableNames()
	results := make([]map[string]any, len(names))
	for i, n := range names {
		results[i] = map[string]any{"table": n}
	}
	return Rows(results)
}

func (e *Engine) doShowIndexes(odb *openDB, stmt *Statement) *Response {
	def, err := odb.cat.FindTable(stmt.Table)
	if err != nil {
		return Err(err)
	}
	results := make([]map[string]any, len(def.Indexes))
	for i, ix := range def.Indexes {
		results[i] = map[string]any{"name": ix.Name, "column": ix.Column, "unique": ix.Unique}
	}
	return Rows(results)
}

func (e *Engine) doCreateIndex(odb *openDB, stmt *Statement) *Response {
	if stmt.IndexName == "" || stmt.Table == "" || len(stmt.Columns) == 0 {
		return Err(fmt.Errorf("create_index: missing index_name, table, or columns"))
	}
	def, err := odb.cat.FindTable(stmt.Table)
	if err != nil {
		return Err(err)
	}
	colName := stmt.Columns[0]
	ci := def.ColumnIndex(colName)
	if ci < 0 {
		return Err(fmt.Errorf("create_index: unknown column %q", colName))
	}
	ixDef, err := odb.cat.AddIndex(def, stmt.IndexName, colName, stmt.Unique)
	if err != nil {
		return Err(err)
	}

	ot, err := odb.getTable(stmt.Table)
	if err != nil {
		return Err(err)
	}
	ix, err := index.Open(ixDef, def.Columns[ci])
	if err != nil {
		return Err(err)
	}
	if err := index.Build(ix, ot.tbl, ci); err != nil {
		return Err(err)
	}
	ot.mu.Lock()
	ot.indexes[ixDef.Name] = ix
	ot.mu.Unlock()

	if err := odb.cat.Save(); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("index %q created on %s(%s)", stmt.IndexName, stmt.Table, colName), 0)
}

func (e *Engine) doInsert(odb *openDB, sess *Session, stmt *Statement) *Response {
	tableName := stmt.Table
	if tableName == "" {
		tableName = sess.TableName
	}
	ot, err := odb.getTable(tableName)
	if err != nil {
		return Err(err)
	}
	ot.mu.Lock()
	defer ot.mu.Unlock()

	buf, err := row.Encode(ot.tbl.Def.Columns, stmt.Values)
	if err != nil {
		return Err(err)
	}
	key := row.PrimaryKey(ot.tbl.Def.Columns, buf)

	c, err := ot.tbl.Find(key)
	if err != nil {
		return Err(err)
	}
	n, err := c.NumCells()
	if err != nil {
		return Err(err)
	}
	if c.CellNum < n {
		if existing, err := c.KeyAtCursor(); err == nil && existing == key {
			return Err(btree.ErrDuplicateKey)
		}
	}
	odb.txns.RecordChange(sess.TxnID, txn.RowChange{
		Pager: ot.tbl.Pager, Schema: ot.tbl.Schema,
		PageNum: int(ot.tbl.Def.RootPage), CellNum: c.CellNum, Key: key,
		Kind: txn.ChangeInsert,
	})
	if err := c.InsertAtCursor(key, buf); err != nil {
		return Err(err)
	}

	for _, ix := range ot.indexes {
		ci := ot.tbl.Def.ColumnIndex(ix.Def.Column)
		keyBytes := row.RawBytes(ot.tbl.Def.Columns, buf, ci)
		if err := ix.Insert(key, keyBytes); err != nil {
			return Err(err)
		}
	}
	return OK("row inserted", 1)
}

func matchesWhere(cols []row.Column, values []any, where *Where) (bool, error) {
	if where == nil {
		return true, nil
	}
	ci := -1
	for i, c := range cols {
		if c.Name == where.Column {
			ci = i
			break
		}
	}
	if ci < 0 {
		return false, fmt.Errorf("unknown column %q", where.Column)
	}
	op, err := row.ParseOp(where.Operator)
	if err != nil {
		return false, err
	}
	return row.Compare(cols[ci].Type, op, values[ci], where.Value)
}

func projectRow(cols []row.Column, values []any, columns []string) map[string]any {
	out := make(map[string]any)
	if len(columns) == 0 {
		for i, c := range cols {
			out[c.Name] = values[i]
		}
		return out
	}
	for _, want := range columns {
		for i, c := range cols {
			if c.Name == want {
				out[c.Name] = values[i]
				break
			}
		}
	}
	return out
}

func (e *Engine) doSelect(odb *openDB, sess *Session, stmt *Statement) *Response {
	tableName := stmt.Table
	if tableName == "" {
		tableName = sess.TableName
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
		values, err := ot.tbl.DecodeRow(c)
		if err != nil {
			return Err(err)
		}
		match, err := matchesWhere(ot.tbl.Def.Columns, values, stmt.Where)
		if err != nil {
			return Err(err)
		}
		if match {
			results = append(results, projectRow(ot.tbl.Def.Columns, values, stmt.Columns))
		}
		if err := c.Advance(); err != nil {
			return Err(err)
		}
	}
	return Rows(results)
}

func (e *Engine) doUpdate(odb *openDB, sess *Session, stmt *Statement) *Response {
	tableName := stmt.Table
	if tableName == "" {
		tableName = sess.TableName
	}
	ot, err := odb.getTable(tableName)
	if err != nil {
		return Err(err)
	}
	ot.mu.Lock()
	defer ot.mu.Unlock()

	ci := ot.tbl.Def.ColumnIndex(stmt.Column)
	if ci < 0 {
		return Err(fmt.Errorf("update: unknown column %q", stmt.Column))
	}

	c, err := ot.tbl.Start()
	if err != nil {
		return Err(err)
	}
	affected := 0
	for !c.EndOfTable {
		values, err := ot.tbl.DecodeRow(c)
		if err != nil {
			return Err(err)
		}
		match, err := matchesWhere(ot.tbl.Def.Columns, values, stmt.Where)
		if err != nil {
			return Err(err)
		}
		if match {
			oldBuf, err := c.ValueAtCursor()
			if err != nil {
				return Err(err)
			}
			oldCopy := append([]byte(nil), oldBuf...)
			key, err := c.KeyAtCursor()
			if err != nil {
				return Err(err)
			}

			values[ci] = stmt.Value
			newBuf, err := row.Encode(ot.tbl.Def.Columns, values)
			if err != nil {
				return Err(err)
			}

			odb.txns.RecordChange(sess.TxnID, txn.RowChange{
				Pager: ot.tbl.Pager, Schema: ot.tbl.Schema,
				PageNum: int(ot.tbl.Def.RootPage), CellNum: c.CellNum, Key: key,
				OldBytes: oldCopy, Kind: txn.ChangeUpdate,
			})
			buf, err := ot.tbl.Pager.Fetch(int(ot.tbl.Def.RootPage))
			if err != nil {
				return Err(err)
			}
			btree.WriteCell(buf, ot.tbl.Schema, c.CellNum, key, newBuf)

			for _, ix := range ot.indexes {
				ixCol := ot.tbl.Def.ColumnIndex(ix.Def.Column)
				if ixCol == ci {
					oldKeyBytes := row.RawBytes(ot.tbl.Def.Columns, oldCopy, ixCol)
					newKeyBytes := row.RawBytes(ot.tbl.Def.Columns, newBuf, ixCol)
					if err := ix.Delete(key, oldKeyBytes); err != nil {
						return Err(err)
					}
					if err := ix.Insert(key, newKeyBytes); err != nil {
						return Err(err)
					}
				}
			}
			affected++
		}
		if err := c.Advance(); err != nil {
			return Err(err)
		}
	}
	return OK("rows updated", affected)
}

func (e *Engine) doDelete(odb *openDB, sess *Session, stmt *Statement) *Response {
	tableName := stmt.Table
	if tableName == "" {
		tableName = sess.TableName
	}
	ot, err := odb.getTable(tableName)
	if err != nil {
		return Err(err)
	}
	ot.mu.Lock()
	defer ot.mu.Unlock()

	// Collect matches first: DeleteAtCursor shifts subsequent cells
	// left, so deleting while iterating forward would skip rows.
	var toDelete []int
	c, err := ot.tbl.Start()
	if err != nil {
		return Err(err)
	}
	for !c.EndOfTable {
		values, err := ot.tbl.DecodeRow(c)
		if err != nil {
			return Err(err)
		}
		match, err := matchesWhere(ot.tbl.Def.Columns, values, stmt.Where)
		if err != nil {
			return Err(err)
		}
		if match {
			toDelete = append(toDelete, c.CellNum)
		}
		if err := c.Advance(); err != nil {
			return Err(err)
		}
	}

	affected := 0
	for i := len(toDelete) - 1; i >= 0; i-- {
		cellNum := toDelete[i]
		buf, err := ot.tbl.Pager.Fetch(int(ot.tbl.Def.RootPage))
		if err != nil {
			return Err(err)
		}
		key := btree.CellKey(buf, ot.tbl.Schema, cellNum)
		oldBytes := append([]byte(nil), btree.CellValue(buf, ot.tbl.Schema, cellNum)...)

		odb.txns.RecordChange(sess.TxnID, txn.RowChange{
			Pager: ot.tbl.Pager, Schema: ot.tbl.Schema,
			PageNum: int(ot.tbl.Def.RootPage), CellNum: cellNum, Key: key,
			OldBytes: oldBytes, Kind: txn.ChangeDelete,
		})
		if err := btree.DeleteAt(buf, ot.tbl.Schema, cellNum); err != nil {
			return Err(err)
		}
		for _, ix := range ot.indexes {
			ixCol := ot.tbl.Def.ColumnIndex(ix.Def.Column)
			keyBytes := row.RawBytes(ot.tbl.Def.Columns, oldBytes, ixCol)
			if err := ix.Delete(key, keyBytes); err != nil {
				return Err(err)
			}
		}
		affected++
	}
	return OK("rows deleted", affected)
}

func (e *Engine) doGrant(odb *openDB, stmt *Statement) *Response {
	role, err := acl.ParseRole(stmt.Role)
	if err != nil {
		return Err(err)
	}
	if err := odb.aclmgr.AssignRole(stmt.Username, role); err != nil {
		return Err(err)
	}
	if err := odb.aclmgr.Save(odb.cat.DatabaseName); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("granted %s to %q", stmt.Role, stmt.Username), 0)
}

func (e *Engine) doRevoke(odb *openDB, stmt *Statement) *Response {
	odb.aclmgr.RevokeRole(stmt.Username)
	if err := odb.aclmgr.Save(odb.cat.DatabaseName); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("revoked role from %q", stmt.Username), 0)
}
