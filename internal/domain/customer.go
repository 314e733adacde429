package domain

type Customer struct {
	ID        string `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	Name      string `json:"name" yaml:"name"`
	Phone     string `json:"phone" yaml:"phone"`
	LicenseNo string `json:"license_no" yaml:"license_no"`
}
