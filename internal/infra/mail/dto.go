package mail

type ContactedEmailData struct {
	LeadID      int64
	Company     string
	ContactName string
	Email       string
	From        string
	ContactedAt string
}

type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}
