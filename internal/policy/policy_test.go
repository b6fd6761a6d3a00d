package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
)

func TestEmptyAllowlistAllowsEverything(t *testing.T) {
	for _, cmd := range []string{"quote", "catalog chains", "transfer"} {
		if err := CheckCommandAllowed(nil, cmd); err != nil {
			t.Fatalf("%q blocked without a policy: %v", cmd, err)
		}
	}
}

func TestAllowlistMatchesNormalized(t *testing.T) {
	allow := []string{"Quote", "catalog  chains"}

	if err := CheckCommandAllowed(allow, "quote"); err != nil {
		t.Fatalf("case difference should not block: %v", err)
	}
	if err := CheckCommandAllowed(allow, "  catalog chains "); err != nil {
		t.Fatalf("whitespace difference should not block: %v", err)
	}

	err := CheckCommandAllowed(allow, "transfer")
	if err == nil {
		t.Fatal("unlisted command should be blocked")
	}
	if clierr.ClassOf(err) != clierr.ClassValidation {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
}
