package common

// Metadata keys carried on gRPC requests.
const (
	SessionTokenHeaderName = "session_token"
	FilenameHeaderName     = "filename"
	MimeHeaderName         = "mime"
	UserIDHeaderName       = "user_id"
	ReportURLHeaderName    = "report_url"
	ReportKeyHeaderName    = "report_key"
)

// AnonymousUser is recorded when a session is created without a user id.
const AnonymousUser = "anonymous"
