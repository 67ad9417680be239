package mysql

import (
	"os"
	"testing"

	"github.com/oemtools/satactivate/subsystem/profile/storage/test"

	_ "github.com/go-sql-driver/mysql"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("SATACTIVATE_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("SATACTIVATE_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	test.TestProfileStorage(t, s)
}
