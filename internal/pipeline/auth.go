package pipeline

import (
	"fmt"

	"github.com/minidb/minidb/internal/acl"
)

// doLogin authenticates against the currently selected database's ACL.
// Like the original command set, login bypasses the permission mask
// itself — it is how a session acquires a role in the first place.
func (e *Engine) doLogin(sess *Session, stmt *Statement) *Response {
	if sess.DBName == "" {
		return Err(fmt.Errorf("login: no database selected"))
	}
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	if err := odb.aclmgr.Login(stmt.Username, stmt.Password); err != nil {
		return Err(err)
	}
	sess.Authenticated = true
	sess.Username = stmt.Username
	token, _ := odb.aclmgr.SessionToken(stmt.Username)
	return Rows([]map[string]any{{
		"username": stmt.Username,
		"role":     odb.aclmgr.RoleOf(stmt.Username).String(),
		"token":    token,
	}})
}

func (e *Engine) doLogout(sess *Session, stmt *Statement) *Response {
	if sess.DBName != "" {
		if odb, err := e.loadDB(sess.DBName); err == nil {
			_ = odb.aclmgr.Logout(sess.Username)
		}
	}
	sess.Authenticated = false
	sess.Username = ""
	return OK("logged out", 0)
}

// doCreateUser requires the issuing session to already be an admin.
// The bootstrap admin account is created out-of-band by "minidbd
// bootstrap", not through this command.
func (e *Engine) doCreateUser(sess *Session, stmt *Statement) *Response {
	if sess.DBName == "" {
		return Err(fmt.Errorf("create_user: no database selected"))
	}
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	if !odb.aclmgr.IsAdmin(sess.Username) {
		return Err(fmt.Errorf("create_user: requires admin privileges"))
	}
	if err := odb.aclmgr.AddUser(stmt.Username, stmt.Password); err != nil {
		return Err(err)
	}
	if stmt.Role != "" {
		role, err := acl.ParseRole(stmt.Role)
		if err != nil {
			return Err(err)
		}
		if err := odb.aclmgr.AssignRole(stmt.Username, role); err != nil {
			return Err(err)
		}
	}
	if err := odb.aclmgr.Save(sess.DBName); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("user %q created", stmt.Username), 0)
}

func (e *Engine) doDropUser(sess *Session, stmt *Statement) *Response {
	if sess.DBName == "" {
		return Err(fmt.Errorf("drop_user: no database selected"))
	}
	odb, err := e.loadDB(sess.DBName)
	if err != nil {
		return Err(err)
	}
	if !odb.aclmgr.IsAdmin(sess.Username) {
		return Err(fmt.Errorf("drop_user: requires admin privileges"))
	}
	if err := odb.aclmgr.DeleteUser(stmt.Username); err != nil {
		return Err(err)
	}
	if err := odb.aclmgr.Save(sess.DBName); err != nil {
		return Err(err)
	}
	return OK(fmt.Sprintf("user %q dropped", stmt.Username), 0)
}
