package googledrive

import "strings"

// nativeTypePrefix marks provider-native document types, which have no raw
// byte representation and must be exported before download.
const nativeTypePrefix = "application/vnd.google-apps."

type exportFormat struct {
	MIMEType  string
	Extension string
}

// exportFormats maps each supported native type to its Office Open XML
// export target. Native subtypes outside this table cannot be downloaded.
var exportFormats = map[string]exportFormat{
	"application/vnd.google-apps.document": {
		MIMEType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	"application/vnd.google-apps.spreadsheet": {
		MIMEType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MIMEType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
}

// ensureExtension appends ext unless the name already ends with it.
func ensureExtension(name, ext string) string {
	if strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}
