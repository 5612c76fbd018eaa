package shared

// Customer-facing permissions. The "self" segment scopes the action to the
// principal's own records.
const (
	PermAccountSelfRead   = "account:self:read"
	PermAccountSelfUpdate = "account:self:update"

	PermAddressesSelfRead  = "addresses:self:read"
	PermAddressesSelfWrite = "addresses:self:write"

	PermCartSelfRead     = "cart:self:read"
	PermCartSelfWrite    = "cart:self:write"
	PermCartSelfCheckout = "cart:self:checkout"

	PermOrdersSelfRead            = "orders:self:read"
	PermOrdersSelfCreate          = "orders:self:create"
	PermOrdersSelfCancel          = "orders:self:cancel"
	PermOrdersSelfReturn          = "orders:self:return"
	PermOrdersSelfInvoiceDownload = "orders:self:invoice:download"

	PermPaymentsSelfInitiate = "payments:self:initiate"
	PermPaymentsSelfRead     = "payments:self:read"

	PermWishlistSelfRead  = "wishlist:self:read"
	PermWishlistSelfWrite = "wishlist:self:write"

	PermReviewsSelfCreate = "reviews:self:create"
)

// Public catalogue browsing.
const (
	PermCatalogRead    = "catalog:read"
	PermProductsRead   = "products:read"
	PermCategoriesRead = "categories:read"
	PermSearchRead     = "search:read"
)

// CustomerScopes lists every customer self-service permission.
func CustomerScopes() []string {
	return []string{
		PermAccountSelfRead,
		PermAccountSelfUpdate,
		PermAddressesSelfRead,
		PermAddressesSelfWrite,
		PermCartSelfRead,
		PermCartSelfWrite,
		PermCartSelfCheckout,
		PermOrdersSelfRead,
		PermOrdersSelfCreate,
		PermOrdersSelfCancel,
		PermOrdersSelfReturn,
		PermOrdersSelfInvoiceDownload,
		PermPaymentsSelfInitiate,
		PermPaymentsSelfRead,
		PermWishlistSelfRead,
		PermWishlistSelfWrite,
		PermReviewsSelfCreate,
	}
}

// PublicScopes lists the anonymous browsing permissions.
func PublicScopes() []string {
	return []string{
		PermCatalogRead,
		PermProductsRead,
		PermCategoriesRead,
		PermSearchRead,
	}
}
