package apierror

const (
	titleDatabase  = "Database Error"
	titleRequest   = "Request Failed"
	titleTransport = "Network Error"
)

// nativeTitles maps native database/PostgREST codes to display titles.
var nativeTitles = map[string]string{
	"23505":    "Duplicate Entry",
	"23503":    "Invalid Reference",
	"42501":    "Permission Denied",
	"42P01":    "Relation Not Found",
	"PGRST301": "Invalid Token",
	"PGRST302": "Authentication Required",
	"PGRST303": "Session Expired",
	"PGRST116": "Record Not Found",
}

// Title returns the short display heading for an error.
func Title(e *Error) string {
	if e == nil {
		return ""
	}
	switch e.kind {
	case KindTransport:
		return titleTransport
	case KindNativeDatabase:
		if title, ok := nativeTitles[e.code]; ok {
			return title
		}
		return titleDatabase
	default:
		return titleRequest
	}
}

// Title is the display heading for this error.
func (e *Error) Title() string {
	return Title(e)
}
