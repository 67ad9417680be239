package inmem

import (
	"testing"

	"github.com/oemtools/satactivate/subsystem/actlog/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestActLogStorage(t, New())
}
