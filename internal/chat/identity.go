package chat

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/user/wschat/internal/types"
)

const (
	demoIDPrefix    = "demo-user-"
	demoDisplayName = "Demo User"
	demoEmail       = "demo@example.com"
	demoSuffixLen   = 9
)

// DemoIdentity returns a fresh throwaway identity. Every call yields a new
// id, so each mounted chat view without a signed-in user gets its own.
func DemoIdentity() types.Identity {
	u := uuid.New()
	suffix := new(big.Int).SetBytes(u[:]).Text(36)
	if len(suffix) > demoSuffixLen {
		suffix = suffix[len(suffix)-demoSuffixLen:]
	}
	return types.Identity{
		ID:          types.UserID(demoIDPrefix + suffix),
		DisplayName: demoDisplayName,
		Email:       demoEmail,
	}
}

// ResolveIdentity returns the supplied identity, or a demo identity when
// none (or one without an id) is supplied.
func ResolveIdentity(supplied *types.Identity) types.Identity {
	if supplied == nil || supplied.ID == "" {
		return DemoIdentity()
	}
	return *supplied
}
