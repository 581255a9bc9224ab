package sqlmatch

import (
	"runtime"
	"time"
)

// CacheID returns the ID of the statement in the statement cache.
func (s *Statement) CacheID() uint64 {
	return s.cacheID
}

// CacheID returns the ID of the database in the statement cache.
func (db *DB) CacheID() uint64 {
	return db.cacheID
}

// TrackedDSN returns a DSN for a shared in-memory database opened through the
// tracking SQLite driver, recording everything it sees under test.
func TrackedDSN(test string) (driverName, dsn string) {
	return trackedDriverName, "file:test.db?cache=shared&mode=memory&" + testNameParam + "=" + test
}

// ResetTracker forgets everything the tracking driver has recorded.
func ResetTracker() {
	tracked.reset()
}

// TrackedStmts returns the number of driver statements prepared and closed
// in test.
func TrackedStmts(test string) (opened, closed int) {
	return tracked.stmts(test)
}

// TrackedQueries returns the number of queries test ran on connections and
// on prepared statements.
func TrackedQueries(test string) (onConn, onStmt int) {
	return tracked.queries(test)
}

// TrackedSQL returns the text of every driver statement prepared in test.
func TrackedSQL(test string) []string {
	tracked.mu.RLock()
	defer tracked.mu.RUnlock()
	var texts []string
	for _, text := range tracked.opened[test] {
		texts = append(texts, text)
	}
	return texts
}

// CollectGarbage runs the garbage collector several times so that pending
// finalizers get a chance to run.
func CollectGarbage() {
	for i := 0; i <= 10; i++ {
		runtime.GC()
		time.Sleep(0)
	}
}

// CacheHolds reports whether a driver statement for stmtID is prepared on
// dbID.
func CacheHolds(dbID, stmtID uint64) bool {
	prepared.mu.RLock()
	defer prepared.mu.RUnlock()
	_, onStmt := prepared.onStmt[stmtID][dbID]
	_, onDB := prepared.onDB[dbID][stmtID]
	return onStmt && onDB
}

// CacheKnowsStmt reports whether stmtID is still registered, or prepared on
// any database.
func CacheKnowsStmt(stmtID uint64) bool {
	prepared.mu.RLock()
	defer prepared.mu.RUnlock()
	if len(prepared.onStmt[stmtID]) > 0 {
		return true
	}
	for _, stmts := range prepared.onDB {
		if _, ok := stmts[stmtID]; ok {
			return true
		}
	}
	return false
}

// CacheKnowsDB reports whether dbID is still registered, or has any
// statement prepared on it.
func CacheKnowsDB(dbID uint64) bool {
	prepared.mu.RLock()
	defer prepared.mu.RUnlock()
	if _, ok := prepared.onDB[dbID]; ok {
		return true
	}
	for _, dbs := range prepared.onStmt {
		if _, ok := dbs[dbID]; ok {
			return true
		}
	}
	return false
}

// PreparedOn returns the number of driver statements cached for dbID.
func PreparedOn(dbID uint64) int {
	prepared.mu.RLock()
	defer prepared.mu.RUnlock()
	n := 0
	for _, dbs := range prepared.onStmt {
		if _, ok := dbs[dbID]; ok {
			n++
		}
	}
	if len(prepared.onDB[dbID]) != n {
		return -1
	}
	return n
}

// CacheSize returns the number of statements and databases in the cache.
func CacheSize() (stmts, dbs int) {
	prepared.mu.RLock()
	defer prepared.mu.RUnlock()
	return len(prepared.onStmt), len(prepared.onDB)
}
