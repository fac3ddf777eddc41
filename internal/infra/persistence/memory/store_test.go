package memory

import (
	"testing"

	"cadcore/internal/infra/persistence/persistencetest"
)

func TestStoreContract(t *testing.T) {
	persistencetest.Run(t, New())
}
