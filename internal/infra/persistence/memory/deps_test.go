package memory

import (
	"testing"

	"btxclinic/testutil"
)

func assertDomainOnlyImports(t *testing.T) {
	t.Helper()
	testutil.AssertNoDirectImports(t, ".", testutil.OnlyDomainAllowed, "state store drivers depend on the domain model only")
}
