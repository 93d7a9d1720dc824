package sqlite

import "testing"

func TestOpen_Memory(t *testing.T) {
	conn, err := Open(MemoryDSN)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Exec(`CREATE TABLE t (v TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO t VALUES ('a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var n int
	if err := conn.QueryRow(`SELECT count(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}
