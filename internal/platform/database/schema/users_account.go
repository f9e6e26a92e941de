package schema

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table             string
	ID                string
	Email             string
	NormalizedEmail   string
	Password          string
	SecurityStamp     string
	EmailConfirmed    string
	LockoutEnabled    string
	FailedAccessCount string
	LockoutEnd        string
	Role              string
	Version           string
	LastLoginAt       string
	DisplayName       string
	Bio               string
	CreatedAt         string
	UpdatedAt         string
	DeletedAt         string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:             "users.account",
	ID:                "id",
	Email:             "email",
	NormalizedEmail:   "normalizedemail",
	Password:          "passwordhash",
	SecurityStamp:     "securitystamp",
	EmailConfirmed:    "emailconfirmed",
	LockoutEnabled:    "lockoutenabled",
	FailedAccessCount: "failedaccesscount",
	LockoutEnd:        "lockoutend",
	Role:              "role",
	Version:           "version",
	LastLoginAt:       "lastloginat",
	DisplayName:       "displayname",
	Bio:               "bio",
	CreatedAt:         "createdat",
	UpdatedAt:         "updatedat",
	DeletedAt:         "deletedat",
}

// Columns returns the columns hydrated into an account, in scan order
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.NormalizedEmail, t.Password, t.SecurityStamp, t.EmailConfirmed,
		t.LockoutEnabled, t.FailedAccessCount, t.LockoutEnd, t.Role, t.Version,
		t.LastLoginAt, t.DisplayName, t.Bio, t.CreatedAt, t.UpdatedAt,
	}
}
