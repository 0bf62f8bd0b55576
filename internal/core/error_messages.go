package core

// # Error Codes Reference
//
// Unclassified failures never reach clients verbatim. MapError turns them
// into a stable message plus a code that users can quote to support staff.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate value: a record with this value already exists
//	        Patterns: "duplicate key", "violates unique"
//	DB002 - Connection: unable to reach the database
//	        Patterns: "connection refused", "connection reset"
//	DB003 - Timeout: the database did not answer in time
//	        Patterns: "timeout"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	          Patterns: "request body too large", "file too large"
//	FILE002 - Malformed CSV
//	          Patterns: "parse error on line", "bare \" in non-quoted-field", "extraneous or missing \""
//	FILE003 - Not a readable spreadsheet
//	          Patterns: "zip: not a valid zip file", "not a valid xls", "unsupported workbook"
//	FILE004 - No file provided
//	          Patterns: "no file provided"
//	FILE005 - Stored file missing
//	          Patterns: "file on disk"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Too many uploads in progress
//	         Patterns: "too many uploads"
//	UPL002 - Cancelled
//	         Patterns: "context canceled"
//	UPL003 - Timed out
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting
//
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//
// ERR000 is the fallback; check the logs for the technical error.

import "strings"

// UserMessage is an error description suitable for end users.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	patterns []string
	msg      UserMessage
}

// errorPatterns is matched in order, case-insensitively, with strings.Contains.
var errorPatterns = []errorPattern{
	{
		patterns: []string{"duplicate key", "violates unique"},
		msg:      UserMessage{Message: "A record with this value already exists", Action: "Use a different value", Code: "DB001"},
	},
	{
		patterns: []string{"connection refused", "connection reset"},
		msg:      UserMessage{Message: "Unable to reach the database", Action: "Please try again in a few moments", Code: "DB002"},
	},
	{
		patterns: []string{"request body too large", "file too large"},
		msg:      UserMessage{Message: "File is too large", Action: "Split the file or upload a smaller one", Code: "FILE001"},
	},
	{
		patterns: []string{"parse error on line", "bare \" in non-quoted-field", "extraneous or missing \""},
		msg:      UserMessage{Message: "The CSV file is malformed", Action: "Check quoting and delimiters, then upload again", Code: "FILE002"},
	},
	{
		patterns: []string{"zip: not a valid zip file", "not a valid xls", "unsupported workbook"},
		msg:      UserMessage{Message: "The spreadsheet could not be read", Action: "Re-save the workbook in Excel and upload again", Code: "FILE003"},
	},
	{
		patterns: []string{"no file provided"},
		msg:      UserMessage{Message: "No file provided", Action: "Attach a file in the \"file\" field", Code: "FILE004"},
	},
	{
		patterns: []string{"file on disk"},
		msg:      UserMessage{Message: "The stored file is missing", Action: "Upload the file again", Code: "FILE005"},
	},
	{
		patterns: []string{"too many uploads"},
		msg:      UserMessage{Message: "Too many uploads in progress", Action: "Please wait and try again", Code: "UPL001"},
	},
	{
		patterns: []string{"context canceled"},
		msg:      UserMessage{Message: "The request was cancelled", Action: "Try again if this was unintentional", Code: "UPL002"},
	},
	{
		patterns: []string{"context deadline exceeded"},
		msg:      UserMessage{Message: "The operation timed out", Action: "Try a smaller file or try again later", Code: "UPL003"},
	},
	{
		patterns: []string{"timeout"},
		msg:      UserMessage{Message: "The database did not answer in time", Action: "Please try again", Code: "DB003"},
	},
	{
		patterns: []string{"rate limit"},
		msg:      UserMessage{Message: "Too many requests", Action: "Please wait a moment before trying again", Code: "RATE001"},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the generic ERR000 message is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		for _, p := range ep.patterns {
			if strings.Contains(errStr, p) {
				return ep.msg
			}
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
