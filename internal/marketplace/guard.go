package marketplace

// Guard gates the privileged operations. The deployer identity comes from
// deployment configuration and is distinct from the admin, which is chosen
// at initialization. Addresses are opaque, case-sensitive strings.
type Guard struct {
	deployer string
}

// NewGuard creates a guard for the given deployer identity.
func NewGuard(deployer string) *Guard {
	return &Guard{deployer: deployer}
}

// RequireDeployer fails with ErrUnauthorized unless caller is the deployer.
func (g *Guard) RequireDeployer(caller string) error {
	if caller == "" || caller != g.deployer {
		return ErrUnauthorized
	}
	return nil
}

// RequireAdmin fails with ErrUnauthorized unless caller is the configured
// admin.
func (g *Guard) RequireAdmin(caller string, config *MarketplaceConfig) error {
	if caller == "" || caller != config.Admin {
		return ErrUnauthorized
	}
	return nil
}
