// ABOUTME: Build and product identification
// ABOUTME: Reported by the CLI and exchanged in the link handshake
package version

// Product information
const (
	Product      = "hactar-sim"
	Manufacturer = "Hactar"
	Version      = "0.3.0"
)

// String returns the product and version
func String() string {
	return Product + " " + Version
}
