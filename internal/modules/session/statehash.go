package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blumarkets/strata/internal/domain"
)

// HashState returns a hex digest of the state's decision-relevant fields.
// A draft validated against one state must not be confirmed against another;
// the hash is how staleness is detected. Holdings are in insertion order,
// which persistence preserves, so the encoding is canonical.
func HashState(st domain.State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "cash=%d;", st.Cash)
	if st.Split != nil {
		fmt.Fprintf(&b, "split=%d/%d/%d;", st.Split.Foundation, st.Split.Growth, st.Split.Upside)
	}
	for _, h := range st.Portfolio.Holdings {
		fmt.Fprintf(&b, "h=%s:%s:%d:%t;", h.AssetID, h.Layer, h.Amount, h.Frozen)
	}
	if st.Loan != nil {
		fmt.Fprintf(&b, "loan=%s:%d:%d;", st.Loan.CollateralAssetID, st.Loan.Principal, st.Loan.LiquidationThreshold)
	}
	for _, p := range st.Protections {
		fmt.Fprintf(&b, "prot=%s:%d:%d;", p.AssetID, p.PremiumPaid, p.ExpiresAt.Unix())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
