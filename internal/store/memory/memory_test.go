package memory

import (
	"testing"

	"github.com/vpriesta/mds-form/internal/store"
	"github.com/vpriesta/mds-form/internal/store/storetest"
)

func TestBackendContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return New() }, storetest.Options{Recency: true})
}
