package permission

// Definition is one entry of the permission catalog.
type Definition struct {
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

func (d Definition) Key() string {
	return Key(d.Module, d.Action)
}

const (
	ModuleUsers         = "users"
	ModuleRoles         = "roles"
	ModuleInventory     = "inventory"
	ModuleProduction    = "production"
	ModuleTemplates     = "templates"
	ModuleNotifications = "notifications"
	ModuleAudit         = "audit"
	ModuleDashboard     = "dashboard"
	ModuleAll           = "*"

	ActionRead     = "read"
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionStock    = "stock"
	ActionArchive  = "archive"
	ActionWork     = "work"
	ActionWithdraw = "withdraw"
	ActionSend     = "send"
	ActionAll      = "*"
)

// Catalog is seeded once and never edited at runtime.
var Catalog = []Definition{
	{ModuleUsers, ActionRead, "View users"},
	{ModuleUsers, ActionCreate, "Create users"},
	{ModuleUsers, ActionUpdate, "Edit users and their roles"},
	{ModuleUsers, ActionDelete, "Deactivate users"},
	{ModuleRoles, ActionRead, "View roles and the permission catalog"},
	{ModuleRoles, ActionCreate, "Create roles"},
	{ModuleRoles, ActionUpdate, "Edit roles and their permissions"},
	{ModuleRoles, ActionDelete, "Delete unused roles"},
	{ModuleInventory, ActionRead, "View items and stock history"},
	{ModuleInventory, ActionCreate, "Create items"},
	{ModuleInventory, ActionUpdate, "Edit item details"},
	{ModuleInventory, ActionDelete, "Delete items"},
	{ModuleInventory, ActionStock, "Move stock: 1 basic, 2 adjust, 3 force"},
	{ModuleProduction, ActionRead, "View production guides"},
	{ModuleProduction, ActionCreate, "Create production guides"},
	{ModuleProduction, ActionUpdate, "Edit guides and steps"},
	{ModuleProduction, ActionDelete, "Delete production guides"},
	{ModuleProduction, ActionArchive, "Archive and restore guides"},
	{ModuleProduction, ActionWork, "Change step status and track time"},
	{ModuleProduction, ActionWithdraw, "Withdraw reserved items"},
	{ModuleTemplates, ActionRead, "View production templates"},
	{ModuleTemplates, ActionCreate, "Create and instantiate templates"},
	{ModuleTemplates, ActionDelete, "Delete templates"},
	{ModuleNotifications, ActionSend, "Send and schedule notifications"},
	{ModuleAudit, ActionRead, "View the audit log"},
	{ModuleDashboard, ActionRead, "View dashboard statistics"},
	{ModuleAll, ActionAll, "Every permission at the granted level"},
}

// Known reports whether key names a catalog entry.
func Known(key string) bool {
	for _, d := range Catalog {
		if d.Key() == key {
			return true
		}
	}
	return false
}
