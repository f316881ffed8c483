package domain

// Record is a customer (cari) consent record held by the remote directory.
// Code is empty only for records that have not been created yet.
type Record struct {
	Code      string
	FullName  string
	Phone     string
	Permitted bool
}

// Persisted reports whether the directory has assigned the record a code.
func (r Record) Persisted() bool {
	return r.Code != ""
}

// WithPermitted returns a copy of r with the consent flag set.
func (r Record) WithPermitted(permitted bool) Record {
	r.Permitted = permitted
	return r
}
