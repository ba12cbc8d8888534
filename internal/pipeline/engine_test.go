package pipeline

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/minidb/minidb/internal/acl"
)

func withTempWorkdir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func execOK(t *testing.T, e *Engine, sess *Session, stmt *Statement) *Response {
	t.Helper()
	out := e.Execute(sess, stmt)
	if out.Resp.Status != "success" {
		t.Fatalf("%s: expected success, got %q: %s", stmt.Command, out.Resp.Status, out.Resp.Message)
	}
	return out.Resp
}

func newColumnDefs() []ColumnSpec {
	return []ColumnSpec{
		{Name: "id", Type: "INT", Size: 4},
		{Name: "name", Type: "STRING", Size: 32},
	}
}

func TestEngineCreateInsertSelectLifecycle(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, false, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})
	execOK(t, e, sess, &Statement{
		Command: "create_table", Table: "users", ColumnDefs: newColumnDefs(),
	})
	execOK(t, e, sess, &Statement{
		Command: "insert", Table: "users", Values: []any{float64(1), "alice"},
	})
	execOK(t, e, sess, &Statement{
		Command: "insert", Table: "users", Values: []any{float64(2), "bob"},
	})

	resp := execOK(t, e, sess, &Statement{Command: "select", Table: "users"})
	if resp.Count != 2 {
		t.Fatalf("expected 2 rows, got %d", resp.Count)
	}

	resp = execOK(t, e, sess, &Statement{
		Command: "select", Table: "users",
		Where: &Where{Column: "name", Operator: "=", Value: "bob"},
	})
	if resp.Count != 1 {
		t.Fatalf("expected 1 row for bob, got %d", resp.Count)
	}
}

func TestEngineInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, false, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "create_table", Table: "users", ColumnDefs: newColumnDefs()})
	execOK(t, e, sess, &Statement{Command: "insert", Table: "users", Values: []any{float64(1), "alice"}})

	out := e.Execute(sess, &Statement{Command: "insert", Table: "users", Values: []any{float64(1), "eve"}})
	if out.Resp.Status != "error" {
		t.Fatalf("expected duplicate key insert to fail, got status %q", out.Resp.Status)
	}
}

func TestEngineUpdateAndDelete(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, false, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "create_table", Table: "users", ColumnDefs: newColumnDefs()})
	execOK(t, e, sess, &Statement{Command: "insert", Table: "users", Values: []any{float64(1), "alice"}})

	execOK(t, e, sess, &Statement{
		Command: "update", Table: "users",
		Where:   &Where{Column: "id", Operator: "=", Value: float64(1)},
		Column:  "name", Value: "alicia",
	})
	resp := execOK(t, e, sess, &Statement{Command: "select", Table: "users"})
	if resp.Count != 1 || resp.Results[0]["name"] != "alicia" {
		t.Fatalf("expected updated row, got %+v", resp.Results)
	}

	execOK(t, e, sess, &Statement{
		Command: "delete", Table: "users",
		Where: &Where{Column: "id", Operator: "=", Value: float64(1)},
	})
	resp = execOK(t, e, sess, &Statement{Command: "select", Table: "users"})
	if resp.Count != 0 {
		t.Fatalf("expected no rows after delete, got %d", resp.Count)
	}
}

func TestEngineTransactionRollbackUndoesInsert(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, false, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "create_table", Table: "users", ColumnDefs: newColumnDefs()})

	out := e.Execute(sess, &Statement{Command: "meta", MetaCommand: "txn enable"})
	if out.Resp.Status != "success" {
		t.Fatalf("txn enable: %s", out.Resp.Message)
	}
	out = e.Execute(sess, &Statement{Command: "meta", MetaCommand: "txn begin"})
	if out.Resp.Status != "success" {
		t.Fatalf("txn begin: %s", out.Resp.Message)
	}
	if sess.TxnID == 0 {
		t.Fatal("expected a non-zero transaction id after txn begin")
	}

	execOK(t, e, sess, &Statement{Command: "insert", Table: "users", Values: []any{float64(1), "alice"}})

	out = e.Execute(sess, &Statement{Command: "meta", MetaCommand: "txn rollback"})
	if out.Resp.Status != "success" {
		t.Fatalf("txn rollback: %s", out.Resp.Message)
	}

	resp := execOK(t, e, sess, &Statement{Command: "select", Table: "users"})
	if resp.Count != 0 {
		t.Fatalf("expected rollback to undo the insert, got %d rows", resp.Count)
	}
}

func TestEngineTxnBeginRejectsNestedBegin(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, false, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "meta", MetaCommand: "txn enable"})

	out := e.Execute(sess, &Statement{Command: "meta", MetaCommand: "txn begin"})
	if out.Resp.Status != "success" {
		t.Fatalf("txn begin: %s", out.Resp.Message)
	}
	firstID := sess.TxnID
	if firstID == 0 {
		t.Fatal("expected a non-zero transaction id after txn begin")
	}

	out = e.Execute(sess, &Statement{Command: "meta", MetaCommand: "txn begin"})
	if out.Resp.Status != "error" {
		t.Fatal("expected a nested txn begin to be rejected")
	}
	if sess.TxnID != firstID {
		t.Fatalf("expected the original transaction id %d to survive a rejected nested begin, got %d", firstID, sess.TxnID)
	}

	out = e.Execute(sess, &Statement{Command: "meta", MetaCommand: "txn commit"})
	if out.Resp.Status != "success" {
		t.Fatalf("txn commit: %s", out.Resp.Message)
	}
	if sess.TxnID != 0 {
		t.Fatalf("expected txn commit to clear the session's transaction id, got %d", sess.TxnID)
	}
}

func TestEnginePermissionDeniedForReadOnlyUser(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, true, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})

	// The bootstrap admin is provisioned out-of-band (as "minidbd
	// bootstrap" does), not through create_user.
	odb := e.dbs["demo"]
	if err := odb.aclmgr.AddUser("admin", "adminpw"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if err := odb.aclmgr.AssignRole("admin", acl.RoleAdmin); err != nil {
		t.Fatalf("bootstrap admin role: %v", err)
	}

	loginOut := e.Execute(sess, &Statement{Command: "login", Username: "admin", Password: "adminpw"})
	if loginOut.Resp.Status != "success" {
		t.Fatalf("admin login: %s", loginOut.Resp.Message)
	}
	execOK(t, e, sess, &Statement{Command: "create_table", Table: "users", ColumnDefs: newColumnDefs()})
	execOK(t, e, sess, &Statement{
		Command: "create_user", Username: "viewer", Password: "viewerpw", Role: "user",
	})
	execOK(t, e, sess, &Statement{Command: "logout"})

	viewerSess := NewSession()
	viewerSess.DBName = "demo"
	loginOut = e.Execute(viewerSess, &Statement{Command: "login", Username: "viewer", Password: "viewerpw"})
	if loginOut.Resp.Status != "success" {
		t.Fatalf("viewer login: %s", loginOut.Resp.Message)
	}

	out := e.Execute(viewerSess, &Statement{
		Command: "insert", Table: "users", Values: []any{float64(1), "alice"},
	})
	if out.Resp.Status != "error" {
		t.Fatal("expected read-only user to be denied write permission")
	}
}

func TestCreateUserRequiresAdminEvenForUsernameAdmin(t *testing.T) {
	withTempWorkdir(t)
	e := NewEngine(8, true, zerolog.Nop())
	sess := NewSession()

	execOK(t, e, sess, &Statement{Command: "create_database", Name: "demo"})
	execOK(t, e, sess, &Statement{Command: "use_database", Name: "demo"})

	// sess has never logged in, so sess.Username == "" — create_user
	// must still be rejected, even when the requested username is the
	// reserved bootstrap name.
	out := e.Execute(sess, &Statement{
		Command: "create_user", Username: "admin", Password: "adminpw", Role: "admin",
	})
	if out.Resp.Status != "error" {
		t.Fatal("expected create_user to require admin privileges regardless of target username")
	}
}
