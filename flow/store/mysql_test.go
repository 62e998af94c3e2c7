package store

import (
	"context"
	"os"
	"testing"
)

// MySQL tests run only against a real server; set TEST_MYSQL_DSN to enable,
// e.g. "root:root@tcp(localhost:3306)/flow_test?parseTime=true".
func testMySQLStore(t *testing.T) *MySQLStore {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	s, err := NewMySQLStore(dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMySQLStore_RoundTrip(t *testing.T) {
	s := testMySQLStore(t)
	t.Cleanup(func() { _ = s.Delete(context.Background(), "exec-1") })
	roundTrip(t, s)
}

func TestMySQLStore_InvalidDSN(t *testing.T) {
	if _, err := NewMySQLStore("invalid:dsn:string"); err == nil {
		t.Error("expected error for invalid DSN")
	}
}
