package shared

// Back-office permissions acting on any customer's records.
const (
	PermProductsAnyCreate  = "products:any:create"
	PermProductsAnyRead    = "products:any:read"
	PermProductsAnyUpdate  = "products:any:update"
	PermProductsAnyDelete  = "products:any:delete"
	PermProductsAnyPublish = "products:any:publish"
	PermProductsAnyArchive = "products:any:archive"

	PermCategoriesAnyWrite = "categories:any:write"

	PermInventoryAnyRead   = "inventory:any:read"
	PermInventoryAnyUpdate = "inventory:any:update"

	PermOrdersAnyRead    = "orders:any:read"
	PermOrdersAnyUpdate  = "orders:any:update"
	PermOrdersAnyCancel  = "orders:any:cancel"
	PermOrdersAnyRefund  = "orders:any:refund"
	PermOrdersAnyFulfill = "orders:any:fulfill"
	PermOrdersAnyShip    = "orders:any:ship"

	PermPaymentsAnyRead   = "payments:any:read"
	PermPaymentsAnyRefund = "payments:any:refund"
)

// BackofficeScopes lists the catalogue, inventory, order and payment
// management permissions.
func BackofficeScopes() []string {
	return []string{
		PermProductsAnyCreate,
		PermProductsAnyRead,
		PermProductsAnyUpdate,
		PermProductsAnyDelete,
		PermProductsAnyPublish,
		PermProductsAnyArchive,
		PermCategoriesAnyWrite,
		PermInventoryAnyRead,
		PermInventoryAnyUpdate,
		PermOrdersAnyRead,
		PermOrdersAnyUpdate,
		PermOrdersAnyCancel,
		PermOrdersAnyRefund,
		PermOrdersAnyFulfill,
		PermOrdersAnyShip,
		PermPaymentsAnyRead,
		PermPaymentsAnyRefund,
	}
}
