package core

import (
	"fmt"
	"strings"
)

// UserMessage is the user-facing form of an error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Quoted to support
}

// catalogue holds every user-facing message by support code.
//
// Codes are grouped by prefix: VAL for batch structure, FILE for the upload
// itself, DB for storage, UPL for the upload gate and request lifecycle,
// AUTH for login and roles, RATE for throttling. ERR000 is the fallback; the
// technical error is always in the application log.
var catalogue = map[string]UserMessage{
	"VAL001": {
		Message: "CSV must contain columns: " + strings.Join(RequiredColumns, ", "),
		Action:  "Check that all required columns are present in the header row",
	},
	"VAL002": {
		Message: "The file has no header row",
		Action:  "The first line must name the columns: " + strings.Join(RequiredColumns, ", "),
	},
	"FILE001": {Message: "File exceeds maximum size limit", Action: "Split the file into smaller batches"},
	"FILE002": {Message: "File is not a valid CSV", Action: "Ensure the file is comma-separated with quoted text where needed"},
	"FILE003": {Message: "CSV files only!", Action: "Export the spreadsheet as .csv and upload it again"},
	"FILE004": {Message: "No file selected", Action: "Please select a CSV file to upload"},
	"FILE005": {Message: "The uploaded file is empty", Action: "Please upload a CSV file with a header and data rows"},
	"DB001":   {Message: "A record with this key already exists", Action: "No changes were saved. Review the batch for conflicting accounts"},
	"DB002":   {Message: "Unable to connect to database", Action: "Please try again in a few moments"},
	"DB003":   {Message: "Database connection was interrupted", Action: "No changes were saved. Please try again"},
	"DB004":   {Message: "Database was busy with conflicting operations", Action: "No changes were saved. Please try again"},
	"DB005":   {Message: "No more account ids are available", Action: "No changes were saved. Contact support"},
	"UPL001":  {Message: "Another batch is being processed", Action: "Please wait a moment and try again"},
	"UPL002":  {Message: "Request was cancelled", Action: "No changes were saved. Please try again"},
	"UPL003":  {Message: "Request timed out", Action: "No changes were saved. Try a smaller file"},
	"AUTH001": {Message: "Invalid username or password", Action: "Check your details and try again"},
	"AUTH002": {Message: "Access denied", Action: "Sign in with an account that has the required role"},
	"AUTH003": {Message: "Please log in to access this page.", Action: "Sign in and try again"},
	"AUTH004": {Message: "Your form has expired", Action: "Reload the page and try again"},
	"RATE001": {Message: "Too many requests", Action: "Please wait a moment before trying again"},
	"ERR000":  {Message: "An unexpected error occurred", Action: "No changes were saved. Please try again or contact support"},
}

// matchRule assigns a code to any error whose lowercased text contains one
// of its fragments. Rules are tried in order, so narrower fragments go first:
// "missing required column" errors also wrap ErrMalformedBatch.
type matchRule struct {
	code      string
	fragments []string
}

var matchRules = []matchRule{
	{"VAL001", []string{"missing required column"}},
	{"VAL002", []string{"malformed batch"}},
	{"FILE001", []string{"file too large"}},
	{"FILE002", []string{"invalid csv"}},
	{"FILE003", []string{"csv files only"}},
	{"FILE004", []string{"no file provided"}},
	{"FILE005", []string{"empty file"}},
	{"DB001", []string{"duplicate key", "unique constraint"}},
	{"DB002", []string{"connection refused"}},
	{"DB003", []string{"connection reset"}},
	{"DB004", []string{"deadlock", "database is locked"}},
	{"DB005", []string{"id space exhausted"}},
	{"UPL001", []string{"too many concurrent uploads"}},
	{"UPL002", []string{"context canceled"}},
	{"UPL003", []string{"context deadline exceeded"}},
	{"AUTH001", []string{"invalid credentials"}},
	{"AUTH002", []string{"access denied"}},
	{"AUTH003", []string{"login required"}},
	{"AUTH004", []string{"csrf"}},
	{"RATE001", []string{"rate limit"}},
}

const fallbackCode = "ERR000"

func lookupMessage(code string) UserMessage {
	msg := catalogue[code]
	msg.Code = code
	return msg
}

// MapError converts a technical error to a user-facing message, or the
// ERR000 fallback when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	return lookupMessage(codeFor(err))
}

func codeFor(err error) string {
	text := strings.ToLower(err.Error())
	for _, rule := range matchRules {
		for _, f := range rule.fragments {
			if strings.Contains(text, f) {
				return rule.code
			}
		}
	}
	return fallbackCode
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && codeFor(err) != fallbackCode
}
