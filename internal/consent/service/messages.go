package service

// Operator-facing notices. The console is used by Turkish-speaking agents.
const (
	msgInvalidPhone   = "Geçersiz telefon numarası"
	msgNameRequired   = "Lütfen ad soyad giriniz"
	msgCreated        = "KVKK kaydı oluşturuldu"
	msgCreateFailed   = "KVKK kaydı oluşturulamadı"
	msgUpdateFailed   = "KVKK izni güncellenemedi"
	msgLookupFailed   = "KVKK verisi alınamadı"
	msgNotFound       = "Bu numaraya ait bir kayıt yok."
	msgRequestAborted = "İstek iptal edildi"
)
