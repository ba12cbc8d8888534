// Package acl implements the user manager: a bounded user table,
// SHA-256 password hashing, bounded concurrent sessions, and the
// {admin, developer, user} x {read, write, create, drop, delete,
// grant, revoke} permission matrix that gates the command pipeline.
package acl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MaxUsers            = 100
	MaxUsernameSize     = 64
	MaxPasswordHashSize = 256
	MaxActiveSessions   = 10

	// BootstrapUsername is the only user exempt from the single-admin
	// restriction, so a fresh database always has a way to become admin.
	BootstrapUsername = "admin"
)

// Role is a user's privilege level. Role lookup defaults to User when
// no mapping exists.
type Role int

const (
	RoleUser Role = iota
	RoleDeveloper
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDeveloper:
		return "developer"
	case RoleUser:
		return "user"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps a wire-protocol role name to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "admin":
		return RoleAdmin, nil
	case "developer":
		return RoleDeveloper, nil
	case "user":
		return RoleUser, nil
	default:
		return 0, fmt.Errorf("acl: unknown role %q", s)
	}
}

// CommandClass is the permission bucket a statement falls into.
type CommandClass int

const (
	Read CommandClass = iota
	Write
	Create
	Drop
	Delete
	Grant
	Revoke
)

// permissionMatrix[role] is the set of command classes that role may
// perform, per the role matrix.
var permissionMatrix = map[Role]map[CommandClass]bool{
	RoleAdmin:     {Read: true, Write: true, Create: true, Drop: true, Delete: true, Grant: true, Revoke: true},
	RoleDeveloper: {Read: true, Write: true, Create: true},
	RoleUser:      {Read: true},
}

// User is one entry in the fixed-size user table.
type User struct {
	Username     string
	PasswordHash string // SHA-256 hex digest
	Active       bool
}

// Session is one entry in the bounded active-session list. Token is a
// per-login correlation id handed back to the client, not a
// capability: permission checks still look the username up in the
// role matrix on every command.
type Session struct {
	Username  string
	LoginTime time.Time
	Token     string
}

// Errors returned by ACL operations.
var (
	ErrDuplicateUser    = fmt.Errorf("acl: user already exists")
	ErrCapacityExceeded = fmt.Errorf("acl: user capacity exceeded")
	ErrNotFound         = fmt.Errorf("acl: user not found")
	ErrAdminExists      = fmt.Errorf("acl: only one admin user allowed")
	ErrInvalidLogin     = fmt.Errorf("acl: invalid username or password")
	ErrInactiveUser     = fmt.Errorf("acl: user is inactive")
	ErrTooManySessions  = fmt.Errorf("acl: maximum active sessions reached")
)

// ACL is the process-wide user manager for one database. It is safe
// for concurrent use; every method holds a single mutex for its
// duration, matching the "mutations must be serialized" design.
type ACL struct {
	mu          sync.Mutex
	Enforced    bool
	users       []User
	roles       map[string]Role
	sessions    []Session
	currentUser string
}

// New returns an ACL with enforcement on and no users.
func New() *ACL {
	return &ACL{Enforced: true, roles: make(map[string]Role)}
}

// HashPassword returns the SHA-256 hex digest of password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (a *ACL) findUser(username string) int {
	for i, u := range a.users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

// AddUser registers username with password, active by default. Fails
// with ErrDuplicateUser or ErrCapacityExceeded.
func (a *ACL) AddUser(username, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.findUser(username) >= 0 {
		return ErrDuplicateUser
	}
	if len(a.users) >= MaxUsers {
		return ErrCapacityExceeded
	}
	a.users = append(a.users, User{
		Username:     username,
		PasswordHash: HashPassword(password),
		Active:       true,
	})
	return nil
}

// DeleteUser removes username and any role mapping it holds.
func (a *ACL) DeleteUser(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.findUser(username)
	if idx < 0 {
		return ErrNotFound
	}
	a.users = append(a.users[:idx], a.users[idx+1:]...)
	delete(a.roles, username)
	return nil
}

// AssignRole grants role to username. Assigning RoleAdmin fails with
// ErrAdminExists if a different admin already exists; the bootstrap
// username is exempt from this restriction.
func (a *ACL) AssignRole(username string, role Role) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if role == RoleAdmin && username != BootstrapUsername {
		for name, r := range a.roles {
			if r == RoleAdmin && name != username {
				return ErrAdminExists
			}
		}
	}
	a.roles[username] = role
	return nil
}

// RevokeRole removes username's role mapping, reverting it to the
// default (RoleUser).
func (a *ACL) RevokeRole(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.roles, username)
}

// RoleOf returns username's role, defaulting to RoleUser if unmapped.
func (a *ACL) RoleOf(username string) Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roleOfLocked(username)
}

func (a *ACL) roleOfLocked(username string) Role {
	if r, ok := a.roles[username]; ok {
		return r
	}
	return RoleUser
}

// IsAdmin reports whether username holds RoleAdmin.
func (a *ACL) IsAdmin(username string) bool {
	return a.RoleOf(username) == RoleAdmin
}

// HasPermission reports whether username's role permits cmd, per the
// role matrix. Always true when enforcement is off.
func (a *ACL) HasPermission(username string, cmd CommandClass) bool {
	a.mu.Lock()
	enforced := a.Enforced
	role := a.roleOfLocked(username)
	a.mu.Unlock()
	if !enforced {
		return true
	}
	return permissionMatrix[role][cmd]
}

// authenticateLocked checks username/password and reports whether they
// match an active user. Caller holds a.mu.
func (a *ACL) authenticateLocked(username, password string) error {
	idx := a.findUser(username)
	if idx < 0 {
		return ErrInvalidLogin
	}
	u := a.users[idx]
	if !u.Active {
		return ErrInactiveUser
	}
	if u.PasswordHash != HashPassword(password) {
		return ErrInvalidLogin
	}
	return nil
}

// touchSessionLocked adds or refreshes username's session entry.
// Caller holds a.mu.
func (a *ACL) touchSessionLocked(username string) error {
	for i := range a.sessions {
		if a.sessions[i].Username == username {
			a.sessions[i].LoginTime = time.Now()
			return nil
		}
	}
	if len(a.sessions) >= MaxActiveSessions {
		return ErrTooManySessions
	}
	a.sessions = append(a.sessions, Session{
		Username:  username,
		LoginTime: time.Now(),
		Token:     uuid.New().String(),
	})
	return nil
}

// SessionToken returns the correlation token issued to username's
// active session, if any.
func (a *ACL) SessionToken(username string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sessions {
		if s.Username == username {
			return s.Token, true
		}
	}
	return "", false
}

// Authenticate verifies username/password, refreshes or creates a
// session, and makes username the current user.
func (a *ACL) Authenticate(username, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.authenticateLocked(username, password); err != nil {
		return err
	}
	if err := a.touchSessionLocked(username); err != nil {
		return err
	}
	a.currentUser = username
	return nil
}

// Login is Authenticate with the same session bookkeeping; the wire
// protocol exposes both as distinct commands, but they share behavior.
func (a *ACL) Login(username, password string) error {
	return a.Authenticate(username, password)
}

// Logout removes username's session. If username is empty, it clears
// the current-user pointer only, leaving any session entries intact.
func (a *ACL) Logout(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if username == "" {
		a.currentUser = ""
		return nil
	}
	for i, s := range a.sessions {
		if s.Username == username {
			a.sessions = append(a.sessions[:i], a.sessions[i+1:]...)
			if a.currentUser == username {
				a.currentUser = ""
			}
			return nil
		}
	}
	return ErrNotFound
}

// CurrentUser returns the ACL's current-user pointer, or "" if unset.
func (a *ACL) CurrentUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentUser
}

// ActiveSessions returns a snapshot of the current session list.
func (a *ACL) ActiveSessions() []Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Session, len(a.sessions))
	copy(out, a.sessions)
	return out
}
