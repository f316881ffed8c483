package client

import (
	"fmt"

	"kvkk-permits/internal/consent/domain"
)

// wireCari is the directory's record shape. cariKodu is omitted on create.
type wireCari struct {
	CariKodu    string `json:"cariKodu,omitempty"`
	CariIsim    string `json:"cariIsim"`
	CariTelefon string `json:"cariTelefon"`
	KvkkOnayi   int    `json:"kvkkOnayi"`
}

// envelope covers both `{status:true, cari}` and `{status:false, description, message}`.
type envelope struct {
	Status      *bool     `json:"status"`
	Cari        *wireCari `json:"cari,omitempty"`
	Description string    `json:"description,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// record validates a success body. A body without a coded cari is not a record.
func (e envelope) record(op string) (domain.Record, error) {
	if e.Cari == nil {
		return domain.Record{}, newTransportError(op, CategoryBadData, 0, "success response without cari", nil)
	}
	if e.Cari.CariKodu == "" {
		return domain.Record{}, newTransportError(op, CategoryBadData, 0, "cari without cariKodu", nil)
	}
	if e.Cari.KvkkOnayi != 0 && e.Cari.KvkkOnayi != 1 {
		return domain.Record{}, newTransportError(op, CategoryBadData, 0,
			fmt.Sprintf("kvkkOnayi out of range: %d", e.Cari.KvkkOnayi), nil)
	}
	return domain.Record{
		Code:      e.Cari.CariKodu,
		FullName:  e.Cari.CariIsim,
		Phone:     e.Cari.CariTelefon,
		Permitted: e.Cari.KvkkOnayi == 1,
	}, nil
}

func toWire(r domain.Record) wireCari {
	return wireCari{
		CariKodu:    r.Code,
		CariIsim:    r.FullName,
		CariTelefon: r.Phone,
		KvkkOnayi:   flag(r.Permitted),
	}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
