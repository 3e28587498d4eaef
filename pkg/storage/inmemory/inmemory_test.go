package inmemory_test

import (
	"github.com/papercomputeco/ligandx/pkg/storage"
	"github.com/papercomputeco/ligandx/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/ligandx/pkg/utils/test"
)

var _ = testutils.DescribeDriver("in-memory", func() storage.Driver {
	return inmemory.NewDriver()
})
