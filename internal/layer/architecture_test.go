package layer

import (
	"testing"

	"cadcore/testutil"
)

func TestRegistryDoesNotDependOnScene(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "cadcore/internal/layer", testutil.SceneImportForbidden,
		"layer visibility reaches the scene through events")
}
