package rbac

// Simple default policy. Expand as needed.
var RolePermissions = Policy{
	"candidate": {
		"definition:view",
		"session:create",
		"session:resume",
		"session:answer",
		"session:transition",
		"session:finalize",
		"session:view-own",
		"result:view-own",
	},
	"author": {
		"definition:create",
		"definition:view",
		"definition:list",
		"definition:duplicate",
		"question:create",
		"session:view-all",
		"session:grade",
		"result:view-all",
	},
	"admin": {
		"*", // everything
	},
}
