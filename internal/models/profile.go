package models

// EmployeeProfile and ClientProfile are read-only views of tables owned by
// the staff and client directories.
type EmployeeProfile struct {
	ID        string `gorm:"primaryKey;type:text" json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatarUrl"`
	Position  string `json:"position"`
}

func (EmployeeProfile) TableName() string {
	return "employees"
}

type ClientProfile struct {
	ID        string `gorm:"primaryKey;type:text" json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatarUrl"`
	Company   string `json:"company"`
}

func (ClientProfile) TableName() string {
	return "clients"
}
