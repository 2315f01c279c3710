package devapi

// SeedUser is a demo account created at start up.
type SeedUser struct {
	User
	Password string
}

// DefaultSeed is the demo school: two students, one staff member and one
// administrator.
var DefaultSeed = []SeedUser{
	{User: User{ID: 1, NISN: "123", FullName: "Siti Aminah", Username: "siti", Role: "student", ClassGroup: "XII RPL 1", Jurusan: "RPL"}, Password: "4321"},
	{User: User{ID: 2, NISN: "124", FullName: "Budi Santoso", Username: "budi", Role: "student", ClassGroup: "XII TKJ 2", Jurusan: "TKJ"}, Password: "4321"},
	{User: User{ID: 3, NISN: "900", FullName: "Rina Wulandari", Username: "rina", Role: "staff"}, Password: "guru123"},
	{User: User{ID: 4, NISN: "901", FullName: "Administrator", Username: "admin", Role: "admin"}, Password: "admin123"},
}

func Seed(store *Store, users []SeedUser) error {
	for _, u := range users {
		if _, err := store.AddUser(u.User, u.Password); err != nil {
			return err
		}
	}
	return nil
}
