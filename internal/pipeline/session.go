package pipeline

// Session is the per-connection state the command pipeline threads
// through every statement: which database and transaction (if any)
// the connection is inside, whether it has authenticated, and its
// preferred response format.
type Session struct {
	DBName        string
	TableName     string
	TxnID         uint32
	Authenticated bool
	Username      string
	Format        string // "json" (default) or "table"
}

// NewSession returns a fresh, unauthenticated session with no active
// database or transaction.
func NewSession() *Session {
	return &Session{Format: "json"}
}
