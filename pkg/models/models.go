package models

// Fixed identifiers of the account seeded by the /test/user route.
const (
	TestUserID        = "2ed533f8-8829-4099-b028-e8bb5aa1131b"
	TestCredentialsID = "8a2c92a7-a138-49d3-837a-3b20af4ddd43"
	TestUserName      = "testUser"
)

// AllModels returns all GORM models in dependency order.
func AllModels() []any {
	return []any{
		&User{},
		&UserCredentials{},
		&UserToken{},
	}
}
