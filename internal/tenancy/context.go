package tenancy

import "context"

type ctxKey string

const pharmacyKey ctxKey = "nexofarma.pharmacy_id"

// WithPharmacyID stores the pharmacy id in context.
func WithPharmacyID(ctx context.Context, pharmacyID string) context.Context {
	return context.WithValue(ctx, pharmacyKey, pharmacyID)
}

// PharmacyIDFromContext extracts the pharmacy id if present.
func PharmacyIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(pharmacyKey)
	if val == nil {
		return "", false
	}
	pharmacyID, ok := val.(string)
	return pharmacyID, ok && pharmacyID != ""
}
