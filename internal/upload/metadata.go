package upload

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// DecodeMetadata parses a tus Upload-Metadata header: comma-separated
// "key base64value" pairs where the value may be omitted. Elements with
// more than two parts, an empty key or invalid base64 are skipped.
func DecodeMetadata(header string) map[string]string {
	out := make(map[string]string)

	for _, element := range strings.Split(header, ",") {
		parts := strings.Fields(element)
		if len(parts) == 0 || len(parts) > 2 {
			continue
		}

		value := ""

		if len(parts) == 2 {
			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				// Unpadded values are accepted too.
				if decoded, err = base64.RawStdEncoding.DecodeString(parts[1]); err != nil {
					continue
				}
			}

			value = string(decoded)
		}

		out[parts[0]] = value
	}

	return out
}

// ShareURL is the link posted to IRC: the tus upload URL with the file name
// appended, so clients display a meaningful name and extension.
func ShareURL(uploadURL, name string) string {
	return strings.TrimRight(uploadURL, "/") + "/" + url.PathEscape(name)
}
