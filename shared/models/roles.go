package models

// Роль администратора сайта. Совпадает с ролью, которую выдает
// Static Web Apps в заголовке x-ms-client-principal.
const (
	RoleAdministrator = "administrator"
	RoleAuthenticated = "authenticated"
)

// HasRole проверяет, есть ли у пользователя указанная роль.
func HasRole(userRoles []string, targetRole string) bool {
	for _, role := range userRoles {
		if role == targetRole {
			return true
		}
	}
	return false
}
