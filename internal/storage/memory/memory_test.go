package memory

import (
	"testing"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Store { return New() })
}
